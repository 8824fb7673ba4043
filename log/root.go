// Package log is the module-tagged structured logger. Info and above are
// always written; Trace and Debug only for modules switched on with
// EnableModule.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	gethlog "github.com/ethereum/go-ethereum/log"
)

const (
	BlockMonitoring   = "blk_mod"   // Block assembly and validation
	PowMonitoring     = "pow_mod"   // Nonce search and retargeting
	StakeMonitoring   = "stake_mod" // Stake registry and finality
	StateMonitoring   = "state_mod" // Account ledger transitions
	NodeMonitoring    = "n_mod"     // Pipeline orchestration
	StorageMonitoring = "store_mod" // Block persistence
)

var allModules = []string{BlockMonitoring, PowMonitoring, StakeMonitoring, StateMonitoring, NodeMonitoring, StorageMonitoring}

var root atomic.Pointer[Logger]

func init() {
	root.Store(NewLogger(gethlog.DiscardHandler()))
}

// InitLogger writes to stderr through a terminal handler at logLevel.
func InitLogger(logLevel string) error {
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		return err
	}
	SetDefault(NewLogger(gethlog.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
	return nil
}

// InitJSONLogger writes one JSON object per record to w.
func InitJSONLogger(w io.Writer) {
	SetDefault(NewLogger(gethlog.JSONHandler(w)))
}

// SetDefault replaces the root logger and the slog default.
func SetDefault(l *Logger) {
	root.Store(l)
	slog.SetDefault(l.inner)
}

func Root() *Logger {
	return root.Load()
}

var (
	modulesMu sync.RWMutex
	modules   = map[string]bool{}
)

func EnableModule(module string) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules[module] = true
}

func DisableModule(module string) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	delete(modules, module)
}

// EnableModules takes the --debug flag: module names separated by commas,
// or "all".
func EnableModules(list string) {
	for _, module := range strings.Split(list, ",") {
		switch module = strings.TrimSpace(module); module {
		case "":
		case "all":
			for _, m := range allModules {
				EnableModule(m)
			}
		default:
			EnableModule(module)
		}
	}
}

func isModuleEnabled(module string) bool {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	return modules[module]
}

func Trace(module string, msg string, kv ...any) {
	if isModuleEnabled(module) {
		Root().Write(LevelTrace, module, msg, kv...)
	}
}

func Debug(module string, msg string, kv ...any) {
	if isModuleEnabled(module) {
		Root().Write(LevelDebug, module, msg, kv...)
	}
}

func Info(module string, msg string, kv ...any) {
	Root().Write(LevelInfo, module, msg, kv...)
}

func Warn(module string, msg string, kv ...any) {
	Root().Write(LevelWarn, module, msg, kv...)
}

func Error(module string, msg string, kv ...any) {
	Root().Write(LevelError, module, msg, kv...)
}

// Crit logs and exits the process.
func Crit(module string, msg string, kv ...any) {
	Root().Write(LevelCrit, module, msg, kv...)
	os.Exit(1)
}
