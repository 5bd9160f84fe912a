package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/pagehelper/internal/dom/htmldom"
	"github.com/v0xg/pagehelper/internal/executor"
	"github.com/v0xg/pagehelper/internal/helper"
	"github.com/v0xg/pagehelper/internal/plan"
	"github.com/v0xg/pagehelper/internal/validator"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const todoPage = `<html><head><title>Todos</title></head><body>
	<input id="new-todo" placeholder="What needs doing?">
	<button id="add">Add</button>
	<ul id="list"></ul>
</body></html>`

type fakeShooter struct {
	names []string
	err   error
}

func (f *fakeShooter) Screenshot(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return "", f.err
	}
	return "shots/" + name + ".png", nil
}

func setup(t *testing.T) (*htmldom.Document, *helper.Helper) {
	t.Helper()
	doc, err := htmldom.ParseString(todoPage, "https://example.test/todos")
	require.NoError(t, err)
	h := helper.Install(doc, helper.WithExecutorOptions(executor.Options{
		PollInterval:   5 * time.Millisecond,
		DefaultTimeout: 50 * time.Millisecond,
		DefaultWait:    time.Millisecond,
	}))
	t.Cleanup(func() { helper.Uninstall(doc) })

	// Clicking Add appends an item with the current input value.
	doc.OnEvent(func(ev htmldom.Event) {
		if ev.Type != "click" || htmldom.Attr(ev.Target, "id") != "add" {
			return
		}
		el, err := doc.ElementByID(context.Background(), "new-todo")
		if err != nil || el == nil {
			return
		}
		info, err := el.Describe(context.Background())
		if err != nil {
			return
		}
		assert.NoError(t, doc.AppendHTML("#list", "<li>"+info.Value+"</li>"))
	})
	return doc, h
}

func TestRunStatuses(t *testing.T) {
	_, h := setup(t)
	shooter := &fakeShooter{}
	r := New(h, WithScreenshotter(shooter))
	r.newID = func() string { return "run-1" }

	suite := &plan.Suite{
		Name: "todos",
		URL:  "https://example.test/todos",
		Cases: []plan.Case{
			{
				Name: "add item",
				Operations: []executor.Operation{
					{Action: executor.ActionFill, Target: "new-todo", Value: "Buy milk"},
					{Action: executor.ActionClick, Target: "Add"},
					{Action: executor.ActionWaitForElement, Target: "Buy milk"},
				},
				Validations: []validator.Rule{
					{Type: validator.TypeElementExists, Target: "Buy milk"},
					{Type: validator.TypeURLContains, ExpectedValue: "/todos"},
				},
			},
			{
				Name: "half broken",
				Operations: []executor.Operation{
					{Action: executor.ActionClick, Target: "Delete all"},
				},
				Validations: []validator.Rule{
					{Type: validator.TypeElementExists, Target: "Buy milk"},
				},
			},
			{
				Name: "all broken",
				Validations: []validator.Rule{
					{Type: validator.TypeTextContains, Target: "Nothing", ExpectedValue: "x"},
					{Type: "title_is", ExpectedValue: "Todos"},
				},
			},
			{Name: "empty"},
		},
	}

	result := r.Run(context.Background(), suite)
	require.Len(t, result.Cases, 4)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "todos", result.Name)

	added := result.Cases[0]
	assert.Equal(t, StatusPassed, added.Status)
	require.Len(t, added.Steps, 5)
	assert.Equal(t, `Fill "new-todo" with "Buy milk"`, added.Steps[0].Description)
	assert.Equal(t, `Check URL contains "/todos"`, added.Steps[4].Description)
	assert.Empty(t, added.Note)
	assert.Equal(t, []string{"shots/add item.png"}, added.Screenshots)
	require.NotNil(t, added.Execution)
	assert.Equal(t, 3, added.Execution.Succeeded)

	half := result.Cases[1]
	assert.Equal(t, StatusPartial, half.Status)
	assert.Contains(t, half.Note, "Delete all")

	broken := result.Cases[2]
	assert.Equal(t, StatusFailed, broken.Status)
	assert.Equal(t, "target element not found (+1 more)", broken.Note)
	assert.Nil(t, broken.Execution)

	empty := result.Cases[3]
	assert.Equal(t, StatusSkipped, empty.Status)
	assert.Empty(t, empty.Steps)

	assert.Equal(t, []string{"add item", "half broken", "all broken"}, shooter.names, "skipped cases are not captured")

	sum := result.Summary()
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 1, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Partial)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 3, sum.Executed)
	assert.InDelta(t, 33.33, sum.PassRate, 0.01)
}

func TestRunClearsCacheBetweenCases(t *testing.T) {
	ctx := context.Background()
	_, h := setup(t)

	records, err := h.Find.FindByText(ctx, "Add", "button")
	require.NoError(t, err)
	_, err = h.Cache.CacheElement(ctx, "adder", records[0].Element)
	require.NoError(t, err)

	result := New(h).Run(ctx, &plan.Suite{Cases: []plan.Case{{
		Name:       "uses stale key",
		Operations: []executor.Operation{{Action: executor.ActionClick, Target: "adder"}},
	}}})
	assert.Equal(t, StatusFailed, result.Cases[0].Status)
	assert.Equal(t, 0, h.Cache.Len())
}

func TestRunScreenshotFailureIsNotFatal(t *testing.T) {
	_, h := setup(t)
	shooter := &fakeShooter{err: errors.New("no page")}
	result := New(h, WithScreenshotter(shooter)).Run(context.Background(), &plan.Suite{Cases: []plan.Case{{
		Name:        "check",
		Validations: []validator.Rule{{Type: validator.TypeElementExists, Target: "Add"}},
	}}})
	assert.Equal(t, StatusPassed, result.Cases[0].Status)
	assert.Empty(t, result.Cases[0].Screenshots)
}

func TestRunCancelled(t *testing.T) {
	_, h := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := New(h).Run(ctx, &plan.Suite{Cases: []plan.Case{
		{Name: "a", Validations: []validator.Rule{{Type: validator.TypeElementExists, Target: "Add"}}},
		{Name: "b", Validations: []validator.Rule{{Type: validator.TypeElementExists, Target: "Add"}}},
	}})
	require.Len(t, result.Cases, 2)
	for _, c := range result.Cases {
		assert.Equal(t, StatusSkipped, c.Status)
		assert.Contains(t, c.Note, "context canceled")
	}
	assert.Equal(t, 0.0, result.Summary().PassRate)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusPassed, status([]Step{{Success: true}, {Success: true}}))
	assert.Equal(t, StatusFailed, status([]Step{{}, {}}))
	assert.Equal(t, StatusPartial, status([]Step{{Success: true}, {}}))
}
