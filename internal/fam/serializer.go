package fam

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Serialize encodes m into the exact wire layout Parse decodes, satisfying
// the round-trip law Parse(Serialize(m)) == m for every well-formed m
// (spec.md §8 invariant 5).
func Serialize(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer

	if err := writeU32(&buf, Magic); err != nil {
		return nil, err
	}
	if err := writeU16(&buf, Version); err != nil {
		return nil, err
	}
	if err := writeU16(&buf, uint16(m.Flags)); err != nil {
		return nil, err
	}
	if err := writeU64(&buf, m.PipID); err != nil {
		return nil, err
	}
	if err := writeU32(&buf, m.QueueSizeMiB); err != nil {
		return nil, err
	}
	if err := writeU32(&buf, m.NestedProcessTerminationTimeoutMS); err != nil {
		return nil, err
	}
	if err := writeU32(&buf, m.ReportQueueStarvationTimeoutMS); err != nil {
		return nil, err
	}
	if err := writeBytesField(&buf, m.Salt); err != nil {
		return nil, err
	}
	if err := writeStringField(&buf, m.RootProcessPath); err != nil {
		return nil, err
	}

	root := m.ScopeRoot
	if root == nil {
		root = &ScopeNode{}
	}
	if err := writeScopeNode(&buf, root); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeScopeNode(buf *bytes.Buffer, node *ScopeNode) error {
	if err := writeStringField(buf, node.Name); err != nil {
		return err
	}
	if err := writeU32(buf, uint32(node.PolicyMask)); err != nil {
		return err
	}
	if err := writeU32(buf, uint32(node.ConePolicy)); err != nil {
		return err
	}
	if len(node.Children) > MaxRecordLen {
		return ErrOversizeRecord
	}
	if err := writeU16(buf, uint16(len(node.Children))); err != nil {
		return err
	}
	for _, child := range node.Children {
		if err := writeScopeNode(buf, child); err != nil {
			return err
		}
	}
	return nil
}

func writeU16(buf *bytes.Buffer, v uint16) error {
	return binary.Write(buf, binary.LittleEndian, v)
}

func writeU32(buf *bytes.Buffer, v uint32) error {
	return binary.Write(buf, binary.LittleEndian, v)
}

func writeU64(buf *bytes.Buffer, v uint64) error {
	return binary.Write(buf, binary.LittleEndian, v)
}

func writeBytesField(buf *bytes.Buffer, b []byte) error {
	if len(b) > MaxRecordLen {
		return ErrOversizeRecord
	}
	if err := writeU16(buf, uint16(len(b))); err != nil {
		return err
	}
	if len(b) > 0 {
		if _, err := buf.Write(b); err != nil {
			return fmt.Errorf("fam: write field: %w", err)
		}
	}
	return nil
}

func writeStringField(buf *bytes.Buffer, s string) error {
	return writeBytesField(buf, []byte(s))
}
