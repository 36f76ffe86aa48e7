package job

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// Generator stamps works out of a job template, giving each one a fresh
// 3-byte prefix so responses can be matched to the work that produced them.
// It is shared by all devices.
type Generator struct {
	mx       sync.Mutex
	template [WorkDataSize]byte
	name     string
	prefix   uint32
	issued   uint64
}

func NewGenerator(name string, template []byte, prefixStart uint32) (*Generator, error) {
	if len(template) < WorkDataSize {
		return nil, fmt.Errorf("work template %s: %d bytes, need %d", name, len(template), WorkDataSize)
	}
	g := &Generator{name: name, prefix: prefixStart & 0xffffff}
	copy(g.template[:], template)
	return g, nil
}

// NewGeneratorHex accepts the template as hex, whitespace ignored.
func NewGeneratorHex(name, templateHex string, prefixStart uint32) (*Generator, error) {
	b, err := hex.DecodeString(strings.Join(strings.Fields(templateHex), ""))
	if err != nil {
		return nil, fmt.Errorf("work template %s: %w", name, err)
	}
	return NewGenerator(name, b, prefixStart)
}

func (g *Generator) Next() *Work {
	g.mx.Lock()
	defer g.mx.Unlock()

	data := g.template
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], g.prefix)
	copy(data[:PrefixSize], p[1:])

	w, _ := NewWork(fmt.Sprintf("%s-%06x", g.name, g.prefix), data[:])
	g.prefix = (g.prefix + 1) & 0xffffff
	g.issued++
	return w
}

func (g *Generator) Issued() uint64 {
	g.mx.Lock()
	defer g.mx.Unlock()
	return g.issued
}
