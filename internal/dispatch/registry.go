package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
)

// ErrUnregisteredRequest reports a request type without a bound handler.
// It is a configuration defect detected by Builder.Build.
var ErrUnregisteredRequest = errors.New("unregistered request")

// ErrDuplicateHandler reports a second handler bound to the same request type.
var ErrDuplicateHandler = errors.New("duplicate handler")

// errBuilt is recorded when a Builder is used after Build.
var errBuilt = errors.New("dispatch builder already built")

// pipeline is the ordered validator list and single handler for one request type.
type pipeline struct {
	name       string
	validators []validateFunc
	handle     handleFunc
}

// Builder collects handler and validator registrations at startup.
// It is not safe for concurrent use.
type Builder struct {
	pipelines   map[reflect.Type]*pipeline
	declared    map[reflect.Type]string
	behaviors   []Behavior
	stopOnFirst bool
	logger      *slog.Logger
	errs        []error
	built       bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithStopOnFirstFailure stops the validation stage at the first validator
// that reports errors instead of collecting errors from all validators.
func WithStopOnFirstFailure() Option {
	return func(b *Builder) { b.stopOnFirst = true }
}

// WithLogger sets the logger used for configuration defects and recovered
// panics. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithBehaviors appends behaviors wrapping every dispatch, outermost first.
func WithBehaviors(bs ...Behavior) Option {
	return func(b *Builder) { b.behaviors = append(b.behaviors, bs...) }
}

// NewBuilder creates an empty Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		pipelines: make(map[reflect.Type]*pipeline),
		declared:  make(map[reflect.Type]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Use appends behaviors wrapping every dispatch, outermost first.
func (b *Builder) Use(bs ...Behavior) {
	if b.guard() {
		b.behaviors = append(b.behaviors, bs...)
	}
}

func (b *Builder) guard() bool {
	if b.built {
		b.errs = append(b.errs, errBuilt)
		return false
	}
	return true
}

func (b *Builder) entry(t reflect.Type) *pipeline {
	p, ok := b.pipelines[t]
	if !ok {
		p = &pipeline{name: typeName(t)}
		b.pipelines[t] = p
	}
	return p
}

// Register binds h as the handler for request type Req. Binding a second
// handler to the same type is reported by Build.
func Register[Req Request[R], R any](b *Builder, h HandlerFunc[Req, R]) {
	if !b.guard() {
		return
	}
	t := reflect.TypeFor[Req]()
	p := b.entry(t)
	if p.handle != nil {
		b.errs = append(b.errs, fmt.Errorf("%w for %s", ErrDuplicateHandler, p.name))
		return
	}
	p.handle = eraseHandler(h)
}

// Validate appends validators for request type Req. They run in the order
// they were registered, across all calls to Validate.
func Validate[Req any](b *Builder, vs ...ValidatorFunc[Req]) {
	if !b.guard() {
		return
	}
	p := b.entry(reflect.TypeFor[Req]())
	for _, v := range vs {
		p.validators = append(p.validators, eraseValidator(v))
	}
}

// Declare records that request type Req must have a handler by the time
// Build is called.
func Declare[Req any](b *Builder) {
	if !b.guard() {
		return
	}
	t := reflect.TypeFor[Req]()
	b.declared[t] = typeName(t)
}

// Build checks registration completeness and returns the immutable
// Dispatcher. Every declared type and every type with validators must have
// a handler; otherwise the returned error wraps ErrUnregisteredRequest and
// names each missing type.
func (b *Builder) Build() (*Dispatcher, error) {
	if b.built {
		return nil, errBuilt
	}

	var missing []string
	for t, name := range b.declared {
		if p, ok := b.pipelines[t]; !ok || p.handle == nil {
			missing = append(missing, name)
		}
	}
	for t, p := range b.pipelines {
		if _, declared := b.declared[t]; declared {
			continue
		}
		if p.handle == nil {
			missing = append(missing, p.name)
		}
	}

	errs := slices.Clone(b.errs)
	if len(missing) > 0 {
		slices.Sort(missing)
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnregisteredRequest, strings.Join(missing, ", ")))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	b.built = true

	pipelines := make(map[reflect.Type]*pipeline, len(b.pipelines))
	for t, p := range b.pipelines {
		pipelines[t] = &pipeline{
			name:       p.name,
			validators: slices.Clip(slices.Clone(p.validators)),
			handle:     p.handle,
		}
	}

	d := &Dispatcher{
		pipelines:   pipelines,
		stopOnFirst: b.stopOnFirst,
		logger:      b.logger,
	}
	d.chain = chain(d.run, b.behaviors)
	return d, nil
}
