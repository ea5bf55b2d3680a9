package geostream

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Kind tags every object that travels through a stream.
type Kind int

const (
	KindSchema Kind = iota + 1
	KindRow
	KindFeature
	KindContainerStart
	KindContainerEnd
	KindGeometry
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindRow:
		return "row"
	case KindFeature:
		return "feature"
	case KindContainerStart:
		return "container-start"
	case KindContainerEnd:
		return "container-end"
	case KindGeometry:
		return "geometry"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Object is anything a Reader yields or a Writer accepts.
type Object interface {
	Kind() Kind
}

// Reader pulls objects from a decoded source.
//
// Read returns io.EOF only once the input is exhausted. The sequence is lazy,
// finite and cannot be restarted. A Reader owns its source and releases it on
// Close, which may be called more than once.
type Reader interface {
	Read() (Object, error)
	// EnumerateSchemata returns every schema known up front, or
	// ErrUnsupported when that would require scanning the whole input.
	EnumerateSchemata() ([]*Schema, error)
	Close() error
}

// Writer pushes objects to an encoded sink. A schema must be written before
// any row that references it. Close flushes and releases the sink once.
type Writer interface {
	Write(obj Object) error
	Close() error
}

// Visitor handles each object kind. Writers implement it and route Write
// through Dispatch.
type Visitor interface {
	VisitSchema(s *Schema) error
	VisitRow(r *Row) error
	VisitFeature(f *Feature) error
	VisitContainerStart(c *ContainerStart) error
	VisitContainerEnd(c *ContainerEnd) error
	VisitGeometry(g Geometry) error
}

// Dispatch calls the Visitor method matching obj.
func Dispatch(v Visitor, obj Object) error {
	switch o := obj.(type) {
	case nil:
		return ErrNilObject
	case *Schema:
		return v.VisitSchema(o)
	case *Row:
		return v.VisitRow(o)
	case *Feature:
		return v.VisitFeature(o)
	case *ContainerStart:
		return v.VisitContainerStart(o)
	case *ContainerEnd:
		return v.VisitContainerEnd(o)
	case Geometry:
		return v.VisitGeometry(o)
	}
	return fmt.Errorf("%w: cannot dispatch %T", ErrUnsupported, obj)
}

// VisitorBase ignores every object. Embed it to handle only some kinds.
type VisitorBase struct{}

// The VisitorBase methods accept and drop their object.
func (VisitorBase) VisitSchema(*Schema) error                 { return nil }
func (VisitorBase) VisitRow(*Row) error                       { return nil }
func (VisitorBase) VisitFeature(*Feature) error               { return nil }
func (VisitorBase) VisitContainerStart(*ContainerStart) error { return nil }
func (VisitorBase) VisitContainerEnd(*ContainerEnd) error     { return nil }
func (VisitorBase) VisitGeometry(Geometry) error              { return nil }

// ObjectQueue holds objects that were decoded but not yet returned. Readers
// embed it and drain it before decoding more input.
type ObjectQueue struct {
	items []Object
}

// AddFirst puts obj at the head of the queue.
func (q *ObjectQueue) AddFirst(obj Object) {
	q.items = append(q.items, nil)
	copy(q.items[1:], q.items)
	q.items[0] = obj
}

// AddLast puts obj at the tail of the queue.
func (q *ObjectQueue) AddLast(obj Object) {
	q.items = append(q.items, obj)
}

// HasSaved reports whether the queue holds any object.
func (q *ObjectQueue) HasSaved() bool { return len(q.items) > 0 }

// Len is the number of queued objects.
func (q *ObjectQueue) Len() int { return len(q.items) }

// ReadSaved removes and returns the head of the queue, or nil when empty.
func (q *ObjectQueue) ReadSaved() Object {
	if len(q.items) == 0 {
		return nil
	}
	obj := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return obj
}

// SchemaGuard enforces write ordering: schemas before the rows that use
// them, no schema after the first row, balanced containers.
type SchemaGuard struct {
	// AllowSchemaless accepts rows when no schema was ever written.
	AllowSchemaless bool

	schemas  map[string]*Schema
	order    []*Schema
	rowsSeen bool
	depth    int
}

// AddSchema records s. It fails once any row has been accepted.
func (g *SchemaGuard) AddSchema(s *Schema) error {
	if g.rowsSeen {
		return fmt.Errorf("%w: %s", ErrSchemaAfterRows, s.ID)
	}
	if g.schemas == nil {
		g.schemas = make(map[string]*Schema)
	}
	if _, ok := g.schemas[s.ID]; !ok {
		g.order = append(g.order, s)
	}
	g.schemas[s.ID] = s
	return nil
}

// CheckRow returns the schema r refers to and freezes it. The schema is nil
// for an accepted schemaless row.
func (g *SchemaGuard) CheckRow(r *Row) (*Schema, error) {
	g.rowsSeen = true
	if s, ok := g.schemas[r.SchemaID]; ok {
		s.Freeze()
		return s, nil
	}
	if g.AllowSchemaless && len(g.schemas) == 0 {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, r.SchemaID)
}

// Schema returns a previously added schema.
func (g *SchemaGuard) Schema(id string) (*Schema, bool) {
	s, ok := g.schemas[id]
	return s, ok
}

// Schemas returns the added schemas in the order they were first written.
func (g *SchemaGuard) Schemas() []*Schema { return g.order }

// StartContainer records an opened container.
func (g *SchemaGuard) StartContainer() { g.depth++ }

// EndContainer closes the innermost container. It fails when none is open.
func (g *SchemaGuard) EndContainer() error {
	if g.depth == 0 {
		return ErrUnbalancedContainer
	}
	g.depth--
	return nil
}

// Depth is the number of open containers.
func (g *SchemaGuard) Depth() int { return g.depth }

// Copy writes every object read from src to dst and returns how many were
// copied. Neither side is closed.
func Copy(dst Writer, src Reader) (int, error) {
	n := 0
	for {
		obj, err := src.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := dst.Write(obj); err != nil {
			return n, fmt.Errorf("writing %s #%d: %w", obj.Kind(), n+1, err)
		}
		n++
	}
}

// CloseQuietly closes c and logs a failure instead of returning it.
func CloseQuietly(l *zerolog.Logger, c io.Closer, what string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger := LoggerOr(l)
		logger.Error().Err(err).Str("resource", what).Msg("close failed")
	}
}
