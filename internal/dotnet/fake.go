package dotnet

import (
	"context"
	"strings"
	"sync"
)

// Call records one FakeCommander invocation
type Call struct {
	Dir  string
	Name string
	Args []string
}

// FakeCommander is a scripted Commander for tests. Responses are matched by
// the space-joined argument prefix; the longest matching prefix wins.
type FakeCommander struct {
	mu        sync.Mutex
	responses map[string]Output
	errs      map[string]error
	calls     []Call
	// OnRun, when set, runs before a response is returned
	OnRun func(call Call)
}

// NewFakeCommander creates an empty FakeCommander. Unmatched calls return
// exit code 0 with no output.
func NewFakeCommander() *FakeCommander {
	return &FakeCommander{
		responses: make(map[string]Output),
		errs:      make(map[string]error),
	}
}

// Respond scripts the output for calls whose args start with prefix
func (f *FakeCommander) Respond(prefix string, out Output) *FakeCommander {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responses[prefix] = out

	return f
}

// Fail scripts an error for calls whose args start with prefix
func (f *FakeCommander) Fail(prefix string, err error) *FakeCommander {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errs[prefix] = err

	return f
}

// Calls returns a copy of the recorded invocations
func (f *FakeCommander) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Call(nil), f.calls...)
}

// Run implements Commander
func (f *FakeCommander) Run(ctx context.Context, dir, name string, args ...string) (Output, error) {
	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	onRun := f.OnRun
	joined := strings.Join(args, " ")

	var (
		out  Output
		err  error
		best = -1
	)

	for prefix, o := range f.responses {
		if strings.HasPrefix(joined, prefix) && len(prefix) > best {
			out, best = o, len(prefix)
		}
	}

	best = -1

	for prefix, e := range f.errs {
		if strings.HasPrefix(joined, prefix) && len(prefix) > best {
			err, best = e, len(prefix)
		}
	}
	f.mu.Unlock()

	if onRun != nil {
		onRun(call)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Output{ExitCode: -1}, ctxErr
	}

	return out, err
}
