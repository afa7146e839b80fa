package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
	"github.com/goliatone/go-automate/descriptor"
	"github.com/goliatone/go-automate/dispatcher"
	"github.com/goliatone/go-automate/worker"
)

// URICmd prints the descriptor the engine would receive.
type URICmd struct {
	Instance   string            `help:"Instance name." default:"AUTOMATION"`
	Namespace  string            `help:"Namespace path."`
	Class      string            `help:"Class name."`
	FQClass    string            `name:"fqclass" help:"Fully qualified Namespace/Class; overrides --namespace and --class."`
	ObjectType string            `help:"Primary object type."`
	ObjectID   int64             `help:"Primary object id."`
	Attr       map[string]string `help:"Attribute as key=value; repeatable."`
	Message    string            `help:"Message carried as the URI fragment."`
}

func (c *URICmd) Run(g *Globals) error {
	values := attrs.Values{}
	for k, v := range c.Attr {
		values[k] = v
	}
	opts := descriptor.Options{
		Namespace: c.Namespace,
		Class:     c.Class,
		FQClass:   c.FQClass,
		Message:   c.Message,
	}
	if c.ObjectType != "" {
		ref := attrs.Ref{Type: c.ObjectType, ID: c.ObjectID}
		opts.Object = ref
		values[attrs.Key(ref, "")] = fmt.Sprint(c.ObjectID)
	}

	d, err := descriptor.Build(c.Instance, values, opts)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.stdout(), d.String())
	return err
}

// EnqueueCmd submits a delivery for a worker to pick up.
type EnqueueCmd struct {
	UserID     int64             `help:"Acting user id." required:""`
	GroupID    int64             `help:"Group to act as; defaults to the user's current group."`
	ObjectType string            `help:"Primary object type."`
	ObjectID   int64             `help:"Primary object id."`
	Instance   string            `help:"Instance name; defaults to delivery.instance."`
	Namespace  string            `help:"Namespace path."`
	Class      string            `help:"Class name."`
	FQClass    string            `name:"fqclass" help:"Fully qualified Namespace/Class."`
	Attr       map[string]string `help:"Attribute as key=value; repeatable."`
	Message    string            `help:"Automate message."`
	State      string            `help:"State machine step to resume at."`
	Delay      time.Duration     `help:"Earliest delivery, relative to now."`
	ServerGUID string            `name:"server-guid" help:"Pin delivery to one worker."`
}

func (c *EnqueueCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	instance := c.Instance
	if instance == "" {
		instance = cfg.Delivery.Instance
	}
	opts := automate.DeliveryOptions{
		InstanceName: instance,
		UserID:       c.UserID,
		GroupID:      c.GroupID,
		ObjectType:   c.ObjectType,
		ObjectID:     c.ObjectID,
		Namespace:    c.Namespace,
		ClassName:    c.Class,
		FQClassName:  c.FQClass,
		Message:      c.Message,
		State:        c.State,
	}
	if len(c.Attr) > 0 {
		opts.Attrs = make(map[string]any, len(c.Attr))
		for k, v := range c.Attr {
			opts.Attrs[k] = v
		}
	}

	qopts := []dispatcher.QueueOption{
		dispatcher.WithRole(cfg.Delivery.Role),
		dispatcher.WithTimeout(cfg.Delivery.Timeout),
	}
	if c.Delay > 0 {
		qopts = append(qopts, dispatcher.WithDeliverAt(time.Now().Add(c.Delay)))
	}
	if c.ServerGUID != "" {
		qopts = append(qopts, dispatcher.WithServerGUID(c.ServerGUID))
	}

	sub, err := dispatcher.Enqueue(g.context(), a.queue, cfg.Server(), opts, qopts...)
	if err != nil {
		return err
	}
	a.logger.Info("Queued %s for object [%s] as submission [%s]", automate.Inspect(opts.Attrs), opts.ObjectName(), sub.ID)
	_, err = fmt.Fprintln(g.stdout(), sub.ID)
	return err
}

// WorkCmd drains the queue on the configured schedule.
type WorkCmd struct {
	Poll string `help:"Drain schedule; defaults to worker.poll."`
	Once bool   `help:"Run a single drain cycle and exit."`
}

func (c *WorkCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := g.context()
	recorder, err := a.serveMetrics(ctx)
	if err != nil {
		return err
	}
	d, err := a.dispatcher(recorder)
	if err != nil {
		return err
	}

	w := worker.New(a.queue, d, cfg.Server(),
		worker.WithBatchSize(cfg.Worker.Batch),
		worker.WithLease(cfg.Worker.Lease),
		worker.WithDefaultTimeout(cfg.Delivery.Timeout),
		worker.WithLogger(a.logger),
		worker.WithMetrics(recorder),
	)

	if c.Once {
		report, err := w.Drain(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(g.stdout(), "claimed=%d delivered=%d dropped=%d redeliver=%d\n",
			report.Claimed, report.Delivered, report.Dropped, report.Redeliver)
		return err
	}

	poll := c.Poll
	if poll == "" {
		poll = cfg.Worker.Poll
	}
	return w.Run(ctx, poll)
}

// QueueLsCmd lists what is waiting in the queue.
type QueueLsCmd struct{}

func (c *QueueLsCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	subs, err := a.queue.Pending(g.context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(g.stdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDELIVER AT\tATTEMPTS\tSERVER\tROLE\tZONE\tOBJECT\tSTATE")
	for _, s := range subs {
		object, state := "-", "-"
		if opts, err := automate.DecodeOptions(s.Payload); err == nil {
			if opts.ObjectType != "" {
				object = opts.ObjectName()
			}
			if opts.State != "" {
				state = opts.State
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.DeliverAt.Format(time.RFC3339), s.Attempts,
			dash(s.ServerGUID), dash(s.Role), dash(s.Zone), object, state)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
