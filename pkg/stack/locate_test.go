package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocate(t *testing.T) {
	tests := []struct {
		symbol string
		want   Location
	}{
		{"m.(*Foo).bar", Location{Module: "m", Function: "Foo.bar", Line: 42}},
		{"m.Foo.bar", Location{Module: "m", Function: "Foo.bar", Line: 42}},
		{"m.bar", Location{Module: "m", Function: "bar", Line: 42}},
		{"github.com/a/b.(*Foo).bar", Location{Module: "github.com/a/b", Function: "Foo.bar", Line: 42}},
		{"github.com/a/b.(*Cache[...]).Get", Location{Module: "github.com/a/b", Function: "Cache.Get", Line: 42}},
		{"github.com/a/b.Map[...]", Location{Module: "github.com/a/b", Function: "Map", Line: 42}},
		{"gopkg.in/yaml%2ev3.(*decoder).unmarshal", Location{Module: "gopkg.in/yaml.v3", Function: "decoder.unmarshal", Line: 42}},
		{"m.run.func1", Location{Module: "m", Function: "run.func1", Line: 42}},
		{"m.(*Foo).run.func2", Location{Module: "m", Function: "Foo.run.func2", Line: 42}},
		{"m.glob..func1", Location{Module: "m", Function: "glob..func1", Line: 42}},
		{"m.init.0", Location{Module: "m", Function: "init.0", Line: 42}},
		{"main.main", Location{Module: "main", Function: "main", Line: 42}},
		{"", Location{Module: "", Function: "?", Line: 42}},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, Locate(Frame{Function: tt.symbol, Line: 42}))
		})
	}
}

func TestParseSymbolKind(t *testing.T) {
	tests := []struct {
		symbol string
		owner  string
		kind   Kind
	}{
		{"m.bar", "", KindFunc},
		{"m.(*Foo).bar", "Foo", KindMethod},
		{"m.Foo.bar", "Foo", KindMethod},
		{"m.bar.func1", "", KindClosure},
		{"m.bar.gowrap2", "", KindClosure},
		{"m.(*Foo).bar.deferwrap1", "Foo", KindClosure},
		{"m.init.0", "", KindFunc},
	}

	for _, tt := range tests {
		sym := ParseSymbol(tt.symbol)
		assert.Equal(t, tt.owner, sym.Owner, tt.symbol)
		assert.Equal(t, tt.kind, sym.Kind, tt.symbol)
	}
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "m.Foo.bar:42", Location{Module: "m", Function: "Foo.bar", Line: 42}.String())
	assert.Equal(t, "?:0", Location{Function: "?"}.String())
}
