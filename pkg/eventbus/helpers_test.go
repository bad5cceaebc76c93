package eventbus_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

type OrderCreated struct {
	OrderID string `json:"order_id"`
	Total   int    `json:"total"`
}

type PaymentReceived struct {
	PaymentID string `json:"payment_id"`
}

// recordingStore is a ResultStore that keeps every call.
type recordingStore struct {
	mu      sync.Mutex
	batches [][]eventbus.DeliveryResult
	defs    [][]eventbus.HandlerDefinition
	fail    error
}

func (s *recordingStore) Initialize(_ context.Context, defs []eventbus.HandlerDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, defs)
	return nil
}

func (s *recordingStore) Store(_ context.Context, results []eventbus.DeliveryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, results)
	return s.fail
}

func (s *recordingStore) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *recordingStore) Batches() [][]eventbus.DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]eventbus.DeliveryResult(nil), s.batches...)
}

func (s *recordingStore) stored() int {
	n := 0
	for _, b := range s.Batches() {
		n += len(b)
	}
	return n
}

// hookRecorder is an interceptor that logs every hook call.
type hookRecorder struct {
	name string
	mu   *sync.Mutex
	log  *[]string
	errs []error
}

func newHookLog() (*sync.Mutex, *[]string) {
	return &sync.Mutex{}, &[]string{}
}

func (h *hookRecorder) add(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.log = append(*h.log, s)
}

func (h *hookRecorder) Before(ctx context.Context, inv eventbus.Invocation) context.Context {
	h.add(fmt.Sprintf("%s.before:%s", h.name, inv.Descriptor.Method))
	return ctx
}

func (h *hookRecorder) After(_ context.Context, inv eventbus.Invocation) {
	h.add(fmt.Sprintf("%s.after:%s", h.name, inv.Descriptor.Method))
}

func (h *hookRecorder) OnError(_ context.Context, inv eventbus.Invocation, err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	h.add(fmt.Sprintf("%s.error:%s", h.name, inv.Descriptor.Method))
}

func (h *hookRecorder) entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), *h.log...)
}

func ok(owner, method, eventType string) eventbus.Registration {
	return eventbus.Registration{
		Descriptor: eventbus.Descriptor{Owner: owner, Method: method, EventType: eventType},
		Handler: eventbus.HandlerFunc(func(context.Context, eventbus.Event) error {
			return nil
		}),
	}
}

func failing(owner, method, eventType, msg string) eventbus.Registration {
	return eventbus.Registration{
		Descriptor: eventbus.Descriptor{Owner: owner, Method: method, EventType: eventType},
		Handler: eventbus.HandlerFunc(func(context.Context, eventbus.Event) error {
			return errors.New(msg)
		}),
	}
}
