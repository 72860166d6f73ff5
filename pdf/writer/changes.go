package writer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/georgepadayatti/pdfstream/pdf/filters"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

// MaxObjectsPerStream is the largest number of objects packed into one
// object stream.
const MaxObjectsPerStream = 0xffff

// Change is one entry of a ChangeSet. Exactly one of Value and Data is used:
// Data holds pre-serialized object bytes, Value is serialized during the
// update. A change with neither is a deletion.
type Change struct {
	Ref   generic.Reference
	Value generic.PdfObject
	Data  []byte

	// Set for objects stored inside an object stream.
	ObjStm      *generic.Reference
	ObjStmIndex int
}

// Deleted reports whether the change frees its object number.
func (c *Change) Deleted() bool {
	return c.Value == nil && c.Data == nil && c.ObjStm == nil
}

// ChangeSet collects the objects written by one incremental update, keyed by
// object number.
type ChangeSet struct {
	changes map[int]*Change
}

// NewChangeSet creates an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{changes: make(map[int]*Change)}
}

// PutObject records value as the new content of ref.
func (cs *ChangeSet) PutObject(ref generic.Reference, value generic.PdfObject) {
	cs.changes[ref.ObjectNumber] = &Change{Ref: ref, Value: value}
}

// PutBytes records already serialized object bytes, envelope included, for
// ref.
func (cs *ChangeSet) PutBytes(ref generic.Reference, data []byte) {
	if data == nil {
		data = []byte{}
	}
	cs.changes[ref.ObjectNumber] = &Change{Ref: ref, Data: data}
}

// Delete frees ref.
func (cs *ChangeSet) Delete(ref generic.Reference) {
	cs.changes[ref.ObjectNumber] = &Change{Ref: ref}
}

// Get returns the change recorded for object number num.
func (cs *ChangeSet) Get(num int) (*Change, bool) {
	c, ok := cs.changes[num]
	return c, ok
}

// Len returns the number of recorded changes.
func (cs *ChangeSet) Len() int {
	return len(cs.changes)
}

// Sorted returns the changes ordered by object number.
func (cs *ChangeSet) Sorted() []*Change {
	out := make([]*Change, 0, len(cs.changes))
	for _, c := range cs.changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ref.ObjectNumber < out[j].Ref.ObjectNumber
	})
	return out
}

// PackObjectStream moves the objects refs into a new object stream stored
// as objStmRef. Every packed object must be a generation 0 non-stream value
// already recorded with PutObject. The object stream itself becomes a
// regular change.
func (cs *ChangeSet) PackObjectStream(objStmRef generic.Reference, refs []generic.Reference, s *Serializer) error {
	if len(refs) == 0 {
		return nil
	}
	if len(refs) > MaxObjectsPerStream {
		return generic.NewPdfWriteError(fmt.Sprintf("object stream %s would hold %d objects, limit is %d",
			objStmRef, len(refs), MaxObjectsPerStream))
	}
	if _, taken := cs.changes[objStmRef.ObjectNumber]; taken {
		return generic.NewPdfWriteError(fmt.Sprintf("object stream number %d is already in use", objStmRef.ObjectNumber))
	}
	if s == nil {
		s = NewSerializer()
	}

	var header, body bytes.Buffer
	offset := 0
	for i, ref := range refs {
		c, ok := cs.changes[ref.ObjectNumber]
		if !ok || c.Value == nil || c.Ref != ref {
			return generic.NewPdfWriteError(fmt.Sprintf("cannot pack %s: no object recorded", ref))
		}
		if ref.GenerationNumber != 0 {
			return generic.NewPdfWriteError(fmt.Sprintf("cannot pack %s: non-zero generation", ref))
		}
		if _, isStream := c.Value.(*generic.StreamObject); isStream {
			return generic.NewPdfWriteError(fmt.Sprintf("cannot pack stream %s", ref))
		}

		if i > 0 {
			header.WriteByte('\n')
			body.WriteByte('\n')
		}
		start := body.Len()
		if err := s.WriteValue(&body, c.Value, nil); err != nil {
			return err
		}
		header.WriteString(strconv.Itoa(ref.ObjectNumber))
		header.WriteByte(' ')
		header.WriteString(strconv.Itoa(offset))
		offset += body.Len() - start + 1
	}

	data := make([]byte, 0, header.Len()+1+body.Len())
	data = append(data, header.Bytes()...)
	data = append(data, '\n')
	data = append(data, body.Bytes()...)

	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("ObjStm"))
	dict.Set("N", generic.IntegerObject(len(refs)))
	dict.Set("First", generic.IntegerObject(header.Len()+1))
	dict.Set("Filter", generic.NameObject(filters.FlateDecode))
	stream := generic.NewStream(dict, data)
	stream.Unfiltered = true

	for i, ref := range refs {
		cs.changes[ref.ObjectNumber] = &Change{Ref: ref, ObjStm: &objStmRef, ObjStmIndex: i}
	}
	cs.PutObject(objStmRef, stream)
	return nil
}

// PackObjectStreams packs the packable objects of the change set into
// object streams of at most MaxObjectsPerStream objects. next allocates the
// reference of each new object stream. It returns the object stream
// references in creation order.
func (cs *ChangeSet) PackObjectStreams(next func() generic.Reference, s *Serializer) ([]generic.Reference, error) {
	var packable []generic.Reference
	for _, c := range cs.Sorted() {
		if c.Value == nil || c.Ref.GenerationNumber != 0 {
			continue
		}
		if _, isStream := c.Value.(*generic.StreamObject); isStream {
			continue
		}
		packable = append(packable, c.Ref)
	}

	var streams []generic.Reference
	for len(packable) > 0 {
		n := min(len(packable), MaxObjectsPerStream)
		ref := next()
		if err := cs.PackObjectStream(ref, packable[:n], s); err != nil {
			return nil, err
		}
		streams = append(streams, ref)
		packable = packable[n:]
	}
	return streams, nil
}
