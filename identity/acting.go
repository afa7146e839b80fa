package identity

import (
	"context"

	"github.com/goliatone/go-automate"
)

// ActingUser loads the user a delivery runs as. A non-zero groupID that
// differs from the user's current group switches the group on the returned
// copy; zero keeps the current group.
func ActingUser(ctx context.Context, store Store, userID, groupID int64, logger automate.Logger) (*User, error) {
	if userID == 0 {
		return nil, automate.NewError(automate.ErrUserIDRequired, "", nil, nil)
	}
	user, err := store.FindUser(ctx, userID)
	if err != nil {
		if automate.ErrorCode(err) == "" {
			return nil, automate.NewError(automate.ErrUserNotFound, "", err, map[string]any{"user_id": userID})
		}
		return nil, err
	}

	if groupID != 0 && (user.CurrentGroup == nil || user.CurrentGroup.ID != groupID) {
		group, err := store.FindGroup(ctx, groupID)
		if err != nil {
			if automate.ErrorCode(err) == "" {
				return nil, automate.NewError(automate.ErrGroupNotFound, "", err, map[string]any{"miq_group_id": groupID})
			}
			return nil, err
		}
		user.CurrentGroup = group
	}

	var gid int64
	var gname string
	if user.CurrentGroup != nil {
		gid, gname = user.CurrentGroup.ID, user.CurrentGroup.Description
	}
	automate.NormalizeLogger(logger).Info("User [%s] with current group ID [%d] name [%s]", user.UserID, gid, gname)
	return user, nil
}
