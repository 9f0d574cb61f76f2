package model

import (
	"errors"
	"testing"
)

func chain() *Graph {
	return &Graph{
		Nodes: []Node{{ID: 1, Name: "src"}, {ID: 2, Name: "mid"}, {ID: 3, Name: "sink"}},
		Edges: []Edge{
			{Src: 2, SrcPort: 0, Dst: 3, DstPort: 0},
			{Src: 1, SrcPort: 0, Dst: 2, DstPort: 0},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		graph   *Graph
		wantErr bool
	}{
		{name: "chain", graph: chain()},
		{name: "empty", graph: &Graph{}, wantErr: true},
		{
			name:    "duplicate id",
			graph:   &Graph{Nodes: []Node{{ID: 1}, {ID: 1}}},
			wantErr: true,
		},
		{
			name: "unknown node",
			graph: &Graph{
				Nodes: []Node{{ID: 1}},
				Edges: []Edge{{Src: 1, Dst: 9}},
			},
			wantErr: true,
		},
		{
			name: "input fed twice",
			graph: &Graph{
				Nodes: []Node{{ID: 1}, {ID: 2}, {ID: 3}},
				Edges: []Edge{{Src: 1, Dst: 3}, {Src: 2, Dst: 3}},
			},
			wantErr: true,
		},
		{
			name: "gap in inputs",
			graph: &Graph{
				Nodes: []Node{{ID: 1}, {ID: 2}},
				Edges: []Edge{{Src: 1, Dst: 2, DstPort: 1}},
			},
			wantErr: true,
		},
		{
			name: "gap in outputs",
			graph: &Graph{
				Nodes: []Node{{ID: 1}, {ID: 2}},
				Edges: []Edge{{Src: 1, SrcPort: 1, Dst: 2}},
			},
			wantErr: true,
		},
		{
			name: "fan out",
			graph: &Graph{
				Nodes: []Node{{ID: 1}, {ID: 2}, {ID: 3}},
				Edges: []Edge{{Src: 1, Dst: 2}, {Src: 1, Dst: 3}},
			},
		},
		{
			name: "cycle",
			graph: &Graph{
				Nodes: []Node{{ID: 1}, {ID: 2}},
				Edges: []Edge{{Src: 1, Dst: 2}, {Src: 2, Dst: 1}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.graph.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidGraph) {
				t.Errorf("error %v does not wrap ErrInvalidGraph", err)
			}
		})
	}
}

func TestTopologicalOrder(t *testing.T) {
	t.Parallel()
	order, err := chain().TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder failed: %v", err)
	}
	want := []uint64{1, 2, 3}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPortsAndEdges(t *testing.T) {
	t.Parallel()
	g := &Graph{
		Nodes: []Node{{ID: 1}, {ID: 2}, {ID: 3}},
		Edges: []Edge{
			{Src: 2, Dst: 3, DstPort: 1},
			{Src: 1, Dst: 3, DstPort: 0},
			{Src: 1, Dst: 2, DstPort: 0},
		},
	}
	nin, nout := g.PortCounts(3)
	if nin != 2 || nout != 0 {
		t.Errorf("PortCounts(3) = %d,%d, want 2,0", nin, nout)
	}
	in := g.Inputs(3)
	if len(in) != 2 || in[0].Src != 1 || in[1].Src != 2 {
		t.Errorf("Inputs(3) = %v", in)
	}
	if got := len(g.Outputs(1)); got != 2 {
		t.Errorf("Outputs(1) has %d edges, want 2", got)
	}
	if g.NodeCount() != 3 {
		t.Errorf("NodeCount() = %d", g.NodeCount())
	}
}
