package node

import (
	"fmt"
	"io"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// FinalityRecord summarizes one finalized block.
type FinalityRecord struct {
	Height     uint64      `json:"height"`
	Hash       common.Hash `json:"hash"`
	Parent     common.Hash `json:"parent"`
	Score      float64     `json:"score"`
	Votes      int         `json:"votes"`
	Difficulty uint64      `json:"difficulty"`
	TxCount    int         `json:"tx_count"`
}

// History lists finalized blocks in height order, genesis excluded.
func (n *Node) History() []FinalityRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]FinalityRecord, len(n.history))
	copy(out, n.history)
	return out
}

// RenderChain writes an HTML page with the finalized chain as a graph and
// the finality score and difficulty per height as line charts.
func (n *Node) RenderChain(w io.Writer) error {
	records := n.History()
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s chain", n.spec.ID)
	page.AddCharts(chainGraph(records), scoreLine(records, n.params.FinalityThreshold))
	return page.Render(w)
}

func chainGraph(records []FinalityRecord) *charts.Graph {
	graph := charts.NewGraph()
	graph.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Finalized chain",
			Subtitle: "Blocks linked to their parents",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	nodes := make([]opts.GraphNode, 0, len(records)+1)
	links := make([]opts.GraphLink, 0, len(records))
	seen := make(map[common.Hash]bool)
	for _, r := range records {
		if !seen[r.Parent] {
			seen[r.Parent] = true
			nodes = append(nodes, opts.GraphNode{Name: r.Parent.Short()})
		}
		seen[r.Hash] = true
		nodes = append(nodes, opts.GraphNode{
			Name: r.Hash.Short(),
			Tooltip: &opts.Tooltip{
				Show: opts.Bool(true),
				Formatter: types.FuncStr(fmt.Sprintf("Height: %d, Votes: %d, Score: %.3f, Txs: %d",
					r.Height, r.Votes, r.Score, r.TxCount)),
			},
		})
		links = append(links, opts.GraphLink{Source: r.Parent.Short(), Target: r.Hash.Short()})
	}

	graph.AddSeries("chain", nodes, links).SetSeriesOptions(
		charts.WithGraphChartOpts(opts.GraphChart{
			Force:  &opts.GraphForce{Repulsion: 1000, Gravity: 0.3},
			Layout: "force",
			Roam:   opts.Bool(true),
		}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right", Formatter: "{b}"}),
	)
	return graph
}

func scoreLine(records []FinalityRecord, threshold float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Finality", Subtitle: fmt.Sprintf("threshold %.2f", threshold)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "height"}),
	)
	heights := make([]string, 0, len(records))
	scores := make([]opts.LineData, 0, len(records))
	limits := make([]opts.LineData, 0, len(records))
	difficulty := make([]opts.LineData, 0, len(records))
	for _, r := range records {
		heights = append(heights, fmt.Sprintf("%d", r.Height))
		scores = append(scores, opts.LineData{Value: r.Score})
		limits = append(limits, opts.LineData{Value: threshold})
		difficulty = append(difficulty, opts.LineData{Value: r.Difficulty})
	}
	line.SetXAxis(heights).
		AddSeries("score", scores).
		AddSeries("threshold", limits).
		AddSeries("difficulty", difficulty)
	return line
}
