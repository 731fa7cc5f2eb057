package notify

import (
	"context"
	"log"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(to, subject, body string) error
}

// Dispatcher decouples mail delivery from the request path. Enqueue never
// blocks and never reports failure to the caller; the Run loop delivers
// best-effort and logs what it cannot deliver. A lost notification does not
// affect order state.
type Dispatcher struct {
	Sender Sender
	queue  chan Message
}

func NewDispatcher(sender Sender, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{Sender: sender, queue: make(chan Message, buffer)}
}

func (d *Dispatcher) Enqueue(to, subject, body string) {
	select {
	case d.queue <- Message{To: to, Subject: subject, Body: body}:
	default:
		log.Printf("notify queue full, dropping mail to=%s", to)
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case msg := <-d.queue:
			d.deliver(msg)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	if err := d.Sender.Send(msg.To, msg.Subject, msg.Body); err != nil {
		log.Printf("send mail failed to=%s: %v", msg.To, err)
	}
}
