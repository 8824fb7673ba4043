// Package console is a JavaScript shell over a running node. Node operations
// are bound under the zyth object, e.g. zyth.transfer(from, to, 100, 1) then
// zyth.produce().
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/node"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/dop251/goja"
)

const Prompt = "zyth> "

type Console struct {
	ctx   context.Context
	node  *node.Node
	vm    *goja.Runtime
	out   io.Writer
	funcs []string
	// transfers waiting for the next produce
	queue []types.Transaction
}

func New(ctx context.Context, n *node.Node, out io.Writer) *Console {
	c := &Console{ctx: ctx, node: n, vm: goja.New(), out: out, queue: []types.Transaction{}}
	c.bind()
	return c
}

func (c *Console) bind() {
	zyth := c.vm.NewObject()
	fns := map[string]interface{}{
		"head":       c.head,
		"difficulty": c.node.Difficulty,
		"account":    c.account,
		"accounts":   c.accounts,
		"stakers":    c.stakers,
		"supply":     c.node.State().GetTotalSupply,
		"transfer":   c.transfer,
		"pending":    c.pending,
		"produce":    c.produce,
		"history":    c.history,
		"jail":       c.jail,
		"unjail":     c.unjail,
		"functions":  c.functions,
	}
	for name, fn := range fns {
		zyth.Set(name, fn)
		c.funcs = append(c.funcs, name)
	}
	sort.Strings(c.funcs)
	c.vm.Set("zyth", zyth)
	c.vm.Set("print", func(args ...goja.Value) {
		for _, arg := range args {
			fmt.Fprintln(c.out, arg.Export())
		}
	})
}

// Eval runs src and returns its exported result.
func (c *Console) Eval(src string) (interface{}, error) {
	v, err := c.vm.RunString(src)
	if err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// Run reads statements until exit, EOF or an interrupt on an empty line.
func (c *Console) Run(historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          Prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          c.out,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(c.out, "%s\nfunctions: zyth.%s\n", c.node, strings.Join(c.funcs, ", zyth."))
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		v, err := c.vm.RunString(line)
		if err != nil {
			fmt.Fprintln(c.out, "error:", err)
			log.Debug(log.NodeMonitoring, "console statement failed", "src", line, "err", err)
			continue
		}
		fmt.Fprintln(c.out, v)
	}
}

// toJS passes v through JSON so scripts see the json field names.
func (c *Console) toJS(v interface{}) (goja.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return c.vm.ToValue(out), nil
}

func (c *Console) head() (goja.Value, error) {
	b := c.node.Head()
	return c.toJS(map[string]interface{}{
		"height":     b.Header.Height,
		"hash":       b.Hash.Hex(),
		"previous":   b.Header.PreviousHash.Hex(),
		"difficulty": b.Header.Difficulty,
		"nonce":      b.Header.Nonce,
		"timestamp":  b.Header.Timestamp,
		"txs":        len(b.Transactions),
		"votes":      len(b.Header.ValidatorVotes),
	})
}

func (c *Console) account(addr string) (goja.Value, error) {
	acct, ok := c.node.State().GetAccount(common.Address(addr))
	if !ok {
		return goja.Null(), nil
	}
	return c.toJS(acct)
}

func (c *Console) accounts() (goja.Value, error) {
	return c.toJS(c.node.State().GetAllAccounts())
}

func (c *Console) stakers() (goja.Value, error) {
	return c.toJS(c.node.Registry().Stakers())
}

// transfer queues a transfer at the sender's next nonce and returns its hash.
func (c *Console) transfer(from, to string, amount, fee uint64) (string, error) {
	sender := common.Address(from)
	acct, ok := c.node.State().GetAccount(sender)
	if !ok {
		return "", fmt.Errorf("unknown account %s", from)
	}
	nonce := acct.Nonce
	for _, tx := range c.queue {
		if tx.From == sender {
			nonce++
		}
	}
	tx := types.NewTransaction(sender, common.Address(to), amount, fee, nonce)
	c.queue = append(c.queue, *tx)
	return tx.Hash().Hex(), nil
}

func (c *Console) pending() (goja.Value, error) {
	return c.toJS(c.queue)
}

// produce mines the queued transfers into a block, collects the committee's
// votes and finalizes it. The queue is consumed even when finality fails.
func (c *Console) produce() (goja.Value, error) {
	txs := c.queue
	block, found, err := c.node.ProduceBlock(c.ctx, txs)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("nonce space exhausted at difficulty %d", c.node.Difficulty())
	}
	c.queue = []types.Transaction{}
	votes, err := c.node.CollectVotes(c.ctx, block.Hash)
	if err != nil {
		return nil, err
	}
	final, score, err := c.node.FinalizeBlock(c.ctx, block.Hash)
	if err != nil {
		return nil, err
	}
	return c.toJS(map[string]interface{}{
		"height": final.Header.Height,
		"hash":   final.Hash.Hex(),
		"nonce":  final.Header.Nonce,
		"txs":    len(final.Transactions),
		"votes":  len(votes),
		"score":  score,
	})
}

func (c *Console) history() (goja.Value, error) {
	return c.toJS(c.node.History())
}

func (c *Console) jail(addr, reason string) error {
	return c.node.Jail(common.Address(addr), reason)
}

func (c *Console) unjail(addr string) error {
	return c.node.Unjail(common.Address(addr))
}

func (c *Console) functions() []string {
	return append([]string(nil), c.funcs...)
}
