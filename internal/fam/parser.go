package fam

import (
	"encoding/binary"
	"fmt"
)

// cursor is a small bounds-checked sequential reader over the caller-owned
// buffer. Parse performs no allocation beyond these pointer fix-ups and the
// ScopeNode tree itself; the byte slices it hands back to strings are
// copied once (Go strings are immutable, the caller's buffer may be reused
// or freed once a Manifest's strings have been materialized).
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) u16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if c.remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if c.remaining() < 8 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

// bytesField reads a u16-length-prefixed byte field, rejecting a length
// that would run past the buffer or past MaxRecordLen.
func (c *cursor) bytesField() ([]byte, error) {
	n, err := c.u16()
	if err != nil {
		return nil, err
	}
	if int(n) > MaxRecordLen {
		return nil, ErrOversizeRecord
	}
	if c.remaining() < int(n) {
		return nil, ErrTruncated
	}
	b := make([]byte, n)
	copy(b, c.buf[c.pos:c.pos+int(n)])
	c.pos += int(n)
	return b, nil
}

func (c *cursor) stringField() (string, error) {
	b, err := c.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse decodes a File Access Manifest from buf. On error the returned
// Manifest is always nil — no partially-installed state escapes a failed
// parse (spec.md §7).
func Parse(buf []byte) (*Manifest, error) {
	c := &cursor{buf: buf}

	magic, err := c.u32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, ErrBadMagic
	}

	version, err := c.u16()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, ErrVersionMismatch
	}

	flags, err := c.u16()
	if err != nil {
		return nil, err
	}

	pipID, err := c.u64()
	if err != nil {
		return nil, err
	}

	queueSizeMiB, err := c.u32()
	if err != nil {
		return nil, err
	}
	nestedTimeout, err := c.u32()
	if err != nil {
		return nil, err
	}
	starvationTimeout, err := c.u32()
	if err != nil {
		return nil, err
	}

	salt, err := c.bytesField()
	if err != nil {
		return nil, err
	}

	rootPath, err := c.stringField()
	if err != nil {
		return nil, err
	}

	root, err := parseScopeNode(c)
	if err != nil {
		return nil, err
	}

	return &Manifest{
		PipID:                             pipID,
		Flags:                             Flags(flags),
		RootProcessPath:                   rootPath,
		ScopeRoot:                         root,
		Salt:                              salt,
		QueueSizeMiB:                      queueSizeMiB,
		NestedProcessTerminationTimeoutMS: nestedTimeout,
		ReportQueueStarvationTimeoutMS:    starvationTimeout,
	}, nil
}

func parseScopeNode(c *cursor) (*ScopeNode, error) {
	name, err := c.stringField()
	if err != nil {
		return nil, fmt.Errorf("scope node name: %w", err)
	}
	policyMask, err := c.u32()
	if err != nil {
		return nil, err
	}
	conePolicy, err := c.u32()
	if err != nil {
		return nil, err
	}
	childCount, err := c.u16()
	if err != nil {
		return nil, err
	}
	if int(childCount) > MaxRecordLen {
		return nil, ErrOversizeRecord
	}

	node := &ScopeNode{
		Name:       name,
		PolicyMask: Mask(policyMask),
		ConePolicy: Mask(conePolicy),
	}
	if childCount > 0 {
		node.Children = make([]*ScopeNode, 0, childCount)
		for i := 0; i < int(childCount); i++ {
			child, err := parseScopeNode(c)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}
	return node, nil
}
