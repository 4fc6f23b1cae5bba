// Package cli is the operator console: a line-oriented command loop over the
// record store, the check logs and the worker.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeworker/internal/domain"
	"github.com/hamed0406/uptimeworker/internal/repo"
)

const unknownReply = "Sorry, try again"

type Command int

const (
	CmdMan Command = iota
	CmdHelp
	CmdExit
	CmdStats
	CmdListUsers
	CmdUserInfo
	CmdListChecks
	CmdCheckInfo
	CmdListLogs
	CmdLogInfo
	CmdTruncateLog
	CmdRunChecks
)

// LogStore is the subset of checklog.Store the console uses.
type LogStore interface {
	List(includeCompressed bool) ([]string, error)
	Read(name string) (string, error)
	IsCompressed(name string) bool
	Decompress(fileID string) (string, error)
	Truncate(logID string) error
}

// Gatherer runs one synchronous pass over all checks.
type Gatherer interface {
	GatherAll(ctx context.Context) int
}

type command struct {
	kind  Command
	words string
	usage string
	help  string
}

var commands = []command{
	{CmdMan, "man", "man", "Show this help page"},
	{CmdHelp, "help", "help", "Alias of the \"man\" command"},
	{CmdExit, "exit", "exit", "Leave the console"},
	{CmdStats, "stats", "stats", "Runtime statistics of this process"},
	{CmdListUsers, "list users", "list users", "Show every registered user"},
	{CmdUserInfo, "more user info", "more user info --{phone}", "Show details of one user"},
	{CmdListChecks, "list checks", "list checks --up --down", "Show all checks, optionally only up or only down ones"},
	{CmdCheckInfo, "more check info", "more check info --{id}", "Show details of one check"},
	{CmdListLogs, "list logs", "list logs", "Show every log file, live and compressed"},
	{CmdLogInfo, "more log info", "more log info --{name}", "Show the entries of one log file"},
	{CmdTruncateLog, "truncate log", "truncate log --{name}", "Empty a live log file"},
	{CmdRunChecks, "run checks", "run checks", "Evaluate every check now"},
}

type handler func(ctx context.Context, flags []string) error

// Console dispatches operator input through a fixed command table.
type Console struct {
	out      io.Writer
	store    repo.RecordStore
	logs     LogStore
	worker   Gatherer
	logger   *zap.Logger
	started  time.Time
	handlers map[Command]handler
	byWords  map[string]Command
}

func New(out io.Writer, store repo.RecordStore, logs LogStore, worker Gatherer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Console{
		out:     out,
		store:   store,
		logs:    logs,
		worker:  worker,
		logger:  logger,
		started: time.Now(),
		byWords: make(map[string]Command, len(commands)),
	}
	c.handlers = map[Command]handler{
		CmdMan:         c.man,
		CmdHelp:        c.man,
		CmdStats:       c.stats,
		CmdListUsers:   c.listUsers,
		CmdUserInfo:    c.userInfo,
		CmdListChecks:  c.listChecks,
		CmdCheckInfo:   c.checkInfo,
		CmdListLogs:    c.listLogs,
		CmdLogInfo:     c.logInfo,
		CmdTruncateLog: c.truncateLog,
		CmdRunChecks:   c.runChecks,
	}
	for _, cmd := range commands {
		c.byWords[cmd.words] = cmd.kind
	}
	return c
}

// Parse splits a line into the command words and the "--" flags.
func Parse(line string) (Command, []string, bool) {
	words, err := shellquote.Split(strings.TrimSpace(line))
	if err != nil || len(words) == 0 {
		return 0, nil, false
	}
	var key []string
	var flags []string
	for _, w := range words {
		if strings.HasPrefix(w, "--") {
			flags = append(flags, strings.TrimPrefix(w, "--"))
			continue
		}
		key = append(key, strings.ToLower(w))
	}
	joined := strings.Join(key, " ")
	for _, cmd := range commands {
		if cmd.words == joined {
			return cmd.kind, flags, true
		}
	}
	return 0, nil, false
}

// Handle runs one line of input. It reports false once the operator asks to
// leave.
func (c *Console) Handle(ctx context.Context, line string) bool {
	if strings.TrimSpace(line) == "" {
		return true
	}
	kind, flags, ok := Parse(line)
	if !ok {
		c.println(unknownReply)
		return true
	}
	if kind == CmdExit {
		return false
	}
	if err := c.handlers[kind](ctx, flags); err != nil {
		c.logger.Debug("cli_command_failed", zap.String("input", line), zap.Error(err))
		c.println(err.Error())
	}
	return true
}

// Run reads lines from in until exit, EOF or cancellation.
func (c *Console) Run(ctx context.Context, in io.Reader, prompt string) error {
	sc := bufio.NewScanner(in)
	for {
		if prompt != "" {
			fmt.Fprint(c.out, prompt)
		}
		if !sc.Scan() {
			return sc.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.Handle(ctx, sc.Text()) {
			return nil
		}
	}
}

func (c *Console) println(a ...any) { fmt.Fprintln(c.out, a...) }

func (c *Console) header(title string) {
	c.println(strings.Repeat("-", 60))
	c.println(title)
	c.println(strings.Repeat("-", 60))
}

func (c *Console) man(ctx context.Context, _ []string) error {
	c.header("CLI MANUAL")
	for _, cmd := range commands {
		fmt.Fprintf(c.out, "%-30s %s\n", cmd.usage, cmd.help)
	}
	return nil
}

func (c *Console) stats(ctx context.Context, _ []string) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	rows := [][2]string{
		{"CPU Count", fmt.Sprint(runtime.NumCPU())},
		{"Goroutines", fmt.Sprint(runtime.NumGoroutine())},
		{"Heap In Use", humanize.Bytes(m.HeapInuse)},
		{"Heap Allocated", humanize.Bytes(m.HeapAlloc)},
		{"Total Allocated", humanize.Bytes(m.TotalAlloc)},
		{"System Memory", humanize.Bytes(m.Sys)},
		{"GC Cycles", fmt.Sprint(m.NumGC)},
		{"Started", humanize.Time(c.started)},
		{"Uptime", time.Since(c.started).Round(time.Second).String()},
	}
	c.header("SYSTEM STATISTICS")
	for _, r := range rows {
		fmt.Fprintf(c.out, "%-20s %s\n", r[0], r[1])
	}
	return nil
}

func (c *Console) listUsers(ctx context.Context, _ []string) error {
	ids, err := c.store.List(ctx, domain.CollectionUsers)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		c.println("no users found")
		return nil
	}
	for _, id := range ids {
		var u domain.User
		if err := repo.ReadJSON(ctx, c.store, domain.CollectionUsers, id, &u); err != nil {
			continue
		}
		fmt.Fprintf(c.out, "Name: %s %s Phone: %s Checks: %d\n", u.FirstName, u.LastName, u.Phone, len(u.Checks))
	}
	return nil
}

func firstFlag(flags []string, what string) (string, error) {
	if len(flags) == 0 || strings.TrimSpace(flags[0]) == "" {
		return "", fmt.Errorf("missing --{%s}", what)
	}
	return strings.TrimSpace(flags[0]), nil
}

func (c *Console) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	c.println(string(b))
	return nil
}

func (c *Console) readRecord(ctx context.Context, collection, id string, v any) error {
	err := repo.ReadJSON(ctx, c.store, collection, id, v)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%s %q not found", strings.TrimSuffix(collection, "s"), id)
	}
	return err
}

func (c *Console) userInfo(ctx context.Context, flags []string) error {
	phone, err := firstFlag(flags, "phone")
	if err != nil {
		return err
	}
	var u domain.User
	if err := c.readRecord(ctx, domain.CollectionUsers, phone, &u); err != nil {
		return err
	}
	u.HashedPassword = ""
	return c.printJSON(u)
}

func (c *Console) listChecks(ctx context.Context, flags []string) error {
	want := map[domain.State]bool{}
	for _, f := range flags {
		switch strings.ToLower(f) {
		case "up":
			want[domain.StateUp] = true
		case "down":
			want[domain.StateDown] = true
		}
	}
	ids, err := c.store.List(ctx, domain.CollectionChecks)
	if err != nil {
		return err
	}
	shown := 0
	for _, id := range ids {
		var ck domain.Check
		if err := repo.ReadJSON(ctx, c.store, domain.CollectionChecks, id, &ck); err != nil {
			continue
		}
		state := ck.State
		if state == "" {
			state = "unknown"
		}
		if len(want) > 0 && !want[ck.State] {
			continue
		}
		fmt.Fprintf(c.out, "ID: %s %s %s Status: %s\n", ck.ID, ck.HTTPMethod(), ck.Target(), state)
		shown++
	}
	if shown == 0 {
		c.println("no checks found")
	}
	return nil
}

func (c *Console) checkInfo(ctx context.Context, flags []string) error {
	id, err := firstFlag(flags, "id")
	if err != nil {
		return err
	}
	var ck domain.Check
	if err := c.readRecord(ctx, domain.CollectionChecks, id, &ck); err != nil {
		return err
	}
	return c.printJSON(ck)
}

func (c *Console) listLogs(ctx context.Context, _ []string) error {
	names, err := c.logs.List(true)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		c.println("no logs found")
		return nil
	}
	sort.Strings(names)
	for _, n := range names {
		c.println(n)
	}
	return nil
}

func (c *Console) logInfo(ctx context.Context, flags []string) error {
	name, err := firstFlag(flags, "name")
	if err != nil {
		return err
	}
	var content string
	if c.logs.IsCompressed(name) {
		content, err = c.logs.Decompress(name)
	} else {
		content, err = c.logs.Read(name)
	}
	if err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		if line != "" {
			c.println(line)
		}
	}
	return nil
}

func (c *Console) truncateLog(ctx context.Context, flags []string) error {
	name, err := firstFlag(flags, "name")
	if err != nil {
		return err
	}
	if err := c.logs.Truncate(name); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "log %s truncated\n", name)
	return nil
}

func (c *Console) runChecks(ctx context.Context, _ []string) error {
	if c.worker == nil {
		return errors.New("worker not available")
	}
	start := time.Now()
	n := c.worker.GatherAll(ctx)
	fmt.Fprintf(c.out, "evaluated %d checks in %s\n", n, time.Since(start).Round(time.Millisecond))
	return nil
}
