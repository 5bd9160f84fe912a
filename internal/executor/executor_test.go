package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/pagehelper/internal/cache"
	"github.com/v0xg/pagehelper/internal/dom/htmldom"
	"github.com/v0xg/pagehelper/internal/finder"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const formPage = `<body>
	<form>
		<label>Email <input id="email" name="email"></label>
		<input class="nickname" name="nick">
		<button type="button" id="save">Save</button>
		<button type="button" class="add">Add row</button>
	</form>
	<ul class="rows"></ul>
</body>`

type fixture struct {
	doc    *htmldom.Document
	finder *finder.Finder
	cache  *cache.Cache
	exec   *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doc, err := htmldom.ParseString(formPage, "https://example.test/form")
	require.NoError(t, err)
	f := finder.New(doc)
	c := cache.New(f, nil)
	opts := Options{PollInterval: 10 * time.Millisecond, DefaultTimeout: 200 * time.Millisecond, DefaultWait: 5 * time.Millisecond}
	return &fixture{doc: doc, finder: f, cache: c, exec: New(f, c, opts, nil)}
}

func clickTargets(doc *htmldom.Document) []string {
	var ids []string
	for _, ev := range doc.Events() {
		if ev.Type == "click" {
			ids = append(ids, htmldom.Attr(ev.Target, "id")+htmldom.Attr(ev.Target, "class"))
		}
	}
	return ids
}

func TestExecuteContinuesAfterFailure(t *testing.T) {
	fx := newFixture(t)

	report := fx.exec.Execute(context.Background(), []Operation{
		{Action: ActionClick, Target: "Does not exist"},
		{Action: ActionClick, Target: "save"},
	})

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	first := report.Outcomes[0]
	assert.False(t, first.Success)
	assert.True(t, errors.Is(first.Err, ErrTargetNotFound))
	assert.Contains(t, first.Error, "Does not exist")
	assert.Equal(t, "Does not exist", first.Operation.Target)

	second := report.Outcomes[1]
	assert.True(t, second.Success)
	require.NotNil(t, second.Result)
	assert.Equal(t, "save", second.Result.UID)
	assert.Equal(t, []string{"save"}, clickTargets(fx.doc))
}

func TestTargetResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("dom id", func(t *testing.T) {
		fx := newFixture(t)
		report := fx.exec.Execute(ctx, []Operation{{Action: ActionClick, Target: "save"}})
		require.True(t, report.Outcomes[0].Success)
		assert.Equal(t, []string{"save"}, clickTargets(fx.doc))
	})

	t.Run("cache key", func(t *testing.T) {
		fx := newFixture(t)
		records, err := fx.finder.FindByText(ctx, "Add row", "button")
		require.NoError(t, err)
		_, err = fx.cache.CacheElement(ctx, "add-button", records[0].Element)
		require.NoError(t, err)

		report := fx.exec.Execute(ctx, []Operation{{Action: ActionClick, Target: "add-button"}})
		require.True(t, report.Outcomes[0].Success)
		assert.Equal(t, []string{"add"}, clickTargets(fx.doc))
	})

	t.Run("assigned identifier", func(t *testing.T) {
		fx := newFixture(t)
		records, err := fx.finder.FindBySelector(ctx, "input.nickname")
		require.NoError(t, err)
		require.Len(t, records, 1)

		report := fx.exec.Execute(ctx, []Operation{{Action: ActionFill, Target: records[0].UID, Value: "neo"}})
		require.True(t, report.Outcomes[0].Success, report.Outcomes[0].Error)

		info, err := records[0].Element.Describe(ctx)
		require.NoError(t, err)
		assert.Equal(t, "neo", info.Value)
	})

	t.Run("visible text", func(t *testing.T) {
		fx := newFixture(t)
		report := fx.exec.Execute(ctx, []Operation{{Action: ActionClick, Target: "Add row"}})
		require.True(t, report.Outcomes[0].Success)
		assert.Equal(t, []string{"add"}, clickTargets(fx.doc))
	})

	t.Run("detached cached element falls through", func(t *testing.T) {
		fx := newFixture(t)
		records, err := fx.finder.FindByText(ctx, "Add row", "button")
		require.NoError(t, err)
		_, err = fx.cache.CacheElement(ctx, "gone", records[0].Element)
		require.NoError(t, err)
		_, err = fx.doc.Remove("button.add")
		require.NoError(t, err)

		report := fx.exec.Execute(ctx, []Operation{{Action: ActionClick, Target: "gone"}})
		assert.False(t, report.Outcomes[0].Success)
		assert.True(t, errors.Is(report.Outcomes[0].Err, ErrTargetNotFound))
		assert.Empty(t, clickTargets(fx.doc))
	})
}

func TestFillDispatchesEvents(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	report := fx.exec.Execute(ctx, []Operation{{Action: ActionFill, Target: "email", Value: "me@example.test"}})
	require.True(t, report.Outcomes[0].Success)
	assert.Equal(t, "me@example.test", report.Outcomes[0].Result.Value)

	events := fx.doc.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "input", events[0].Type)
	assert.Equal(t, "change", events[1].Type)
	for _, ev := range events {
		assert.True(t, ev.Bubbles)
		assert.Equal(t, "email", htmldom.Attr(ev.Target, "id"))
	}

	el, err := fx.doc.ElementByID(ctx, "email")
	require.NoError(t, err)
	info, err := el.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "me@example.test", info.Value)
}

func TestFillUnresolvedTarget(t *testing.T) {
	fx := newFixture(t)
	report := fx.exec.Execute(context.Background(), []Operation{{Action: ActionFill, Target: "phone", Value: "1"}})
	assert.False(t, report.Outcomes[0].Success)
	assert.True(t, errors.Is(report.Outcomes[0].Err, ErrTargetNotFound))
	assert.Empty(t, fx.doc.Events())
}

func TestWait(t *testing.T) {
	fx := newFixture(t)

	report := fx.exec.Execute(context.Background(), []Operation{
		{Action: ActionWait, Value: "30"},
		{Action: ActionWait},
		{Action: ActionWait, Value: "1e13"},
	})
	require.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 30*time.Millisecond, report.Outcomes[0].Result.Duration)
	assert.GreaterOrEqual(t, report.Outcomes[0].Elapsed, 30*time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, report.Outcomes[1].Result.Duration, "falls back to the default wait")
	assert.Equal(t, 5*time.Millisecond, report.Outcomes[2].Result.Duration, "oversized values fall back to the default wait")
}

func TestWaitHonoursContext(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := fx.exec.Execute(ctx, []Operation{
		{Action: ActionWait, Value: "5000"},
		{Action: ActionClick, Target: "save"},
	})
	require.Len(t, report.Outcomes, 2)
	assert.False(t, report.Outcomes[0].Success)
	assert.True(t, errors.Is(report.Outcomes[0].Err, context.Canceled))
	assert.True(t, report.Outcomes[1].Success, "later operations still run")
}

func TestWaitForElement(t *testing.T) {
	ctx := context.Background()

	t.Run("times out only after the budget", func(t *testing.T) {
		fx := newFixture(t)
		report := fx.exec.Execute(ctx, []Operation{
			{Action: ActionWaitForElement, Target: "Never shows up", Options: OperationOptions{Timeout: 150}},
		})
		out := report.Outcomes[0]
		assert.False(t, out.Success)
		assert.True(t, errors.Is(out.Err, ErrTimeout))
		assert.GreaterOrEqual(t, out.Elapsed, 150*time.Millisecond)
		assert.Less(t, out.Elapsed, 2*time.Second)
	})

	t.Run("uses the default timeout", func(t *testing.T) {
		fx := newFixture(t)
		report := fx.exec.Execute(ctx, []Operation{{Action: ActionWaitForElement, Target: "Never shows up"}})
		assert.GreaterOrEqual(t, report.Outcomes[0].Elapsed, 200*time.Millisecond)
	})

	t.Run("succeeds once the element appears", func(t *testing.T) {
		fx := newFixture(t)
		done := make(chan struct{})
		go func() {
			defer close(done)
			time.Sleep(40 * time.Millisecond)
			assert.NoError(t, fx.doc.AppendHTML("ul.rows", `<li>Row 1 created</li>`))
		}()

		report := fx.exec.Execute(ctx, []Operation{
			{Action: ActionWaitForElement, Target: "Row 1 created", Options: OperationOptions{Timeout: 2000}},
		})
		<-done
		out := report.Outcomes[0]
		require.True(t, out.Success, out.Error)
		assert.True(t, out.Result.Found)
		assert.NotEmpty(t, out.Result.UID)
		assert.Less(t, out.Elapsed, 2*time.Second)
	})

	t.Run("sees content added by an earlier click", func(t *testing.T) {
		fx := newFixture(t)
		fx.doc.OnEvent(func(ev htmldom.Event) {
			if ev.Type == "click" && htmldom.Attr(ev.Target, "class") == "add" {
				assert.NoError(t, fx.doc.AppendHTML("ul.rows", `<li>Row added</li>`))
			}
		})

		report := fx.exec.Execute(ctx, []Operation{
			{Action: ActionClick, Target: "Add row"},
			{Action: ActionWaitForElement, Target: "Row added"},
			{Action: ActionClick, Target: "Row added"},
		})
		assert.Equal(t, 3, report.Succeeded)
	})
}

func TestUnsupportedAction(t *testing.T) {
	fx := newFixture(t)
	report := fx.exec.Execute(context.Background(), []Operation{
		{Action: "hover", Target: "save"},
		{Action: ActionClick, Target: "save"},
	})
	assert.True(t, errors.Is(report.Outcomes[0].Err, ErrUnsupportedAction))
	assert.Contains(t, report.Outcomes[0].Error, "hover")
	assert.True(t, report.Outcomes[1].Success)
}

func TestEmptyBatch(t *testing.T) {
	fx := newFixture(t)
	report := fx.exec.Execute(context.Background(), nil)
	assert.Equal(t, 0, report.Total)
	assert.Empty(t, report.Outcomes)
}

func TestOperationDecoding(t *testing.T) {
	t.Run("json accepts numbers and strings", func(t *testing.T) {
		var ops []Operation
		err := json.Unmarshal([]byte(`[
			{"action": "wait", "value": 1500},
			{"action": "fill", "target": "email", "value": "a@b.c"},
			{"action": "waitForElement", "target": "Done", "options": {"timeout": 3000}},
			{"action": "click", "target": "save", "value": null}
		]`), &ops)
		require.NoError(t, err)
		require.Len(t, ops, 4)
		assert.Equal(t, Value("1500"), ops[0].Value)
		d, ok := ops[0].Value.Millis()
		assert.True(t, ok)
		assert.Equal(t, 1500*time.Millisecond, d)
		assert.Equal(t, Value("a@b.c"), ops[1].Value)
		assert.Equal(t, 3000, ops[2].Options.Timeout)
		assert.Equal(t, Value(""), ops[3].Value)
	})

	t.Run("json rejects other types", func(t *testing.T) {
		var op Operation
		err := json.Unmarshal([]byte(`{"action": "fill", "value": true}`), &op)
		assert.Error(t, err)
	})

	t.Run("yaml scalars", func(t *testing.T) {
		var ops []Operation
		err := yaml.Unmarshal([]byte(`
- action: wait
  value: 250
- action: fill
  target: email
  value: "007"
- action: waitForElement
  target: Done
  options:
    timeout: 900
`), &ops)
		require.NoError(t, err)
		require.Len(t, ops, 3)
		assert.Equal(t, Value("250"), ops[0].Value)
		assert.Equal(t, Value("007"), ops[1].Value)
		assert.Equal(t, 900, ops[2].Options.Timeout)
	})

	t.Run("non-numeric wait value", func(t *testing.T) {
		_, ok := Value("soon").Millis()
		assert.False(t, ok)
		_, ok = Value("0").Millis()
		assert.False(t, ok)
	})

	t.Run("wait value out of range", func(t *testing.T) {
		for _, v := range []Value{"1e13", "Inf", "NaN"} {
			_, ok := v.Millis()
			assert.False(t, ok, string(v))
		}
		d, ok := Value("9223372036854").Millis()
		require.True(t, ok)
		assert.Positive(t, d)
	})
}
