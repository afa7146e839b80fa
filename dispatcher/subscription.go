package dispatcher

type Subscription interface {
	Unsubscribe()
}

type eventSub struct {
	processor EventProcessor
}

type subs struct {
	dispatcher *Dispatcher
	entry      *eventSub
}

func (s *subs) Unsubscribe() {
	if s.entry == nil {
		return
	}
	d := s.dispatcher
	d.mu.Lock()
	defer d.mu.Unlock()

	newList := make([]*eventSub, 0, len(d.events))
	for _, e := range d.events {
		if e != s.entry {
			newList = append(newList, e)
		}
	}
	d.events = newList
}
