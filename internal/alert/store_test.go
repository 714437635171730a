package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"flashbox/internal/model"
	"flashbox/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession is a bare map so tests can inspect the raw stored value and
// count writes.
type fakeSession struct {
	data    map[string][]byte
	sets    int
	deletes int
	err     error
}

func newFakeSession() *fakeSession {
	return &fakeSession{data: make(map[string][]byte)}
}

func (f *fakeSession) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeSession) Set(_ context.Context, key string, value []byte) error {
	f.sets++
	f.data[key] = value
	return nil
}

func (f *fakeSession) Delete(_ context.Context, key string) error {
	f.deletes++
	delete(f.data, key)
	return nil
}

func (f *fakeSession) writes() int {
	return f.sets + f.deletes
}

func (f *fakeSession) raw(t *testing.T) []model.Alert {
	t.Helper()
	data, ok := f.data[DefaultKey]
	if !ok {
		return nil
	}
	var alerts []model.Alert
	require.NoError(t, json.Unmarshal(data, &alerts))
	return alerts
}

func texts(alerts []model.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.Text
	}
	return out
}

// seed queues info/error/success/error/alert in that order
func seed(t *testing.T, st *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, model.TypeInfo, "i1"))
	require.NoError(t, st.Set(ctx, model.TypeError, "e1"))
	require.NoError(t, st.Set(ctx, model.TypeSuccess, "s1"))
	require.NoError(t, st.Set(ctx, model.TypeError, "e2"))
	require.NoError(t, st.Set(ctx, model.TypeAlert, "a1"))
}

func TestStore_Get_Absent(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)

	alerts, err := st.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)

	alerts, err = st.GetOnce(context.Background(), model.TypeError)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Zero(t, fs.writes(), "Reading an absent queue never writes")
}

func TestStore_AppendOrder(t *testing.T) {
	st := NewStore(newFakeSession())
	seed(t, st)

	alerts, err := st.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "e1", "s1", "e2", "a1"}, texts(alerts))
}

func TestStore_Set_FullRecord(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "custom", "plain %s :x"))
	require.NoError(t, st.Set(ctx, model.TypeInfo, "boxed", WithSubject("Heading"), Block()))

	assert.Equal(t, []model.Alert{
		{Type: "custom", Text: "plain %s :x"},
		{Type: model.TypeInfo, Text: "boxed", Subject: "Heading", Block: true},
	}, fs.raw(t))
}

func TestStore_Get_FilterDoesNotWrite(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	seed(t, st)
	before := fs.writes()

	alerts, err := st.Get(context.Background(), model.TypeError, model.TypeAlert)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "a1"}, texts(alerts))

	assert.Equal(t, before, fs.writes())
	assert.Len(t, fs.raw(t), 5)
}

func TestStore_Get_NoMatch(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	require.NoError(t, st.Set(context.Background(), model.TypeInfo, "i1"))
	before := fs.writes()

	alerts, err := st.GetOnce(context.Background(), model.TypeError)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Equal(t, before, fs.writes(), "No match means no write even with delete")
	assert.Len(t, fs.raw(t), 1)
}

func TestStore_GetOnce_ClearsOnlyMatched(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	seed(t, st)
	ctx := context.Background()
	before := fs.writes()

	alerts, err := st.GetOnce(ctx, model.TypeError)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, texts(alerts))
	assert.Equal(t, before+1, fs.writes(), "Exactly one write per deleting call")

	// Remaining alerts keep their relative order
	assert.Equal(t, []string{"i1", "s1", "a1"}, texts(fs.raw(t)))

	again, err := st.GetOnce(ctx, model.TypeError)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStore_GetOnce_All(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	seed(t, st)
	ctx := context.Background()

	alerts, err := st.GetOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, alerts, 5)

	_, present := fs.data[DefaultKey]
	assert.False(t, present, "Queue key must be removed")

	alerts, err = st.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestStore_EmptyQueueCompaction(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, model.TypeError, "e1"))
	require.NoError(t, st.Set(ctx, model.TypeError, "e2"))

	require.NoError(t, st.Delete(ctx, model.TypeError))

	_, present := fs.data[DefaultKey]
	assert.False(t, present, "Key must be absent, not an empty sequence")
}

func TestStore_Delete_ByType(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	seed(t, st)

	require.NoError(t, st.Delete(context.Background(), model.TypeSuccess, model.TypeInfo))
	assert.Equal(t, []string{"e1", "e2", "a1"}, texts(fs.raw(t)))
}

func TestStore_Delete_All_Idempotent(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	ctx := context.Background()

	// Absent queue: no error
	require.NoError(t, st.Delete(ctx))

	seed(t, st)
	require.NoError(t, st.Delete(ctx))
	require.NoError(t, st.Delete(ctx))

	alerts, err := st.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestStore_SetWithPositional(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	ctx := context.Background()

	require.NoError(t, st.SetWithPositional(ctx, model.TypeInfo, "Hello %s", []any{"World"}))
	require.NoError(t, st.SetWithPositional(ctx, model.TypeSuccess, "Saved %d of %d", []any{3, 4},
		WithSubject("Batch %[2]d")))

	assert.Equal(t, []model.Alert{
		{Type: model.TypeInfo, Text: "Hello World"},
		{Type: model.TypeSuccess, Text: "Saved 3 of 4", Subject: "Batch 4"},
	}, fs.raw(t))
}

func TestStore_SetWithPositional_NoValues(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)

	require.NoError(t, st.SetWithPositional(context.Background(), model.TypeInfo, "100%", nil))
	assert.Equal(t, "100%", fs.raw(t)[0].Text, "Text is not formatted without values")
}

func TestStore_SetWithPositional_Malformed(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)

	require.NoError(t, st.SetWithPositional(context.Background(), model.TypeInfo, "%s and %s", []any{"one"}))
	assert.Equal(t, "one and %!s(MISSING)", fs.raw(t)[0].Text)
}

func TestStore_SetWithTemplate(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	ctx := context.Background()

	require.NoError(t, st.SetWithTemplate(ctx, model.TypeError, "Bad: :x", map[string]string{":x": "input"},
		WithSubject("Subject :x")))

	assert.Equal(t, []model.Alert{
		{Type: model.TypeError, Text: "Bad: input", Subject: "Subject input"},
	}, fs.raw(t))
}

func TestStore_Scenario(t *testing.T) {
	st := NewStore(newFakeSession())
	ctx := context.Background()

	require.NoError(t, st.SetWithPositional(ctx, model.TypeInfo, "Hello %s", []any{"World"}))
	require.NoError(t, st.SetWithTemplate(ctx, model.TypeError, "Bad: :x", map[string]string{":x": "input"},
		WithSubject("Subject :x")))

	errs, err := st.Get(ctx, model.TypeError)
	require.NoError(t, err)
	assert.Equal(t, []model.Alert{{Type: model.TypeError, Text: "Bad: input", Subject: "Subject input"}}, errs)

	all, err := st.GetOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	all, err = st.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_WithKey(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs, WithKey("flash"))

	require.NoError(t, st.Set(context.Background(), model.TypeInfo, "x"))
	_, ok := fs.data["flash"]
	assert.True(t, ok)
	_, ok = fs.data[DefaultKey]
	assert.False(t, ok)
}

func TestStore_SessionError(t *testing.T) {
	fs := newFakeSession()
	fs.err = errors.New("backend down")
	st := NewStore(fs)

	_, err := st.Get(context.Background())
	assert.ErrorIs(t, err, fs.err)

	err = st.Set(context.Background(), model.TypeInfo, "x")
	assert.ErrorIs(t, err, fs.err)
}

func TestStore_CorruptQueue(t *testing.T) {
	fs := newFakeSession()
	fs.data[DefaultKey] = []byte("not json")
	st := NewStore(fs)

	_, err := st.Get(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decode alerts")
}

func TestStore_OverMemorySession(t *testing.T) {
	ctx := context.Background()
	sess := session.New("sid", session.NewMemoryStore())
	st := NewStore(sess)

	require.NoError(t, st.Set(ctx, model.TypeInfo, "kept"))
	require.NoError(t, st.Set(ctx, model.TypeError, "dropped"))
	require.NoError(t, st.Delete(ctx, model.TypeError))

	alerts, err := st.GetOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, texts(alerts))

	_, ok, err := sess.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SetWithPositional_SubjectUsesFewerValues(t *testing.T) {
	fs := newFakeSession()
	st := NewStore(fs)
	ctx := context.Background()

	require.NoError(t, st.SetWithPositional(ctx, model.TypeInfo, "Saved %s", []any{"doc"}, WithSubject("Done")))
	require.NoError(t, st.SetWithPositional(ctx, model.TypeInfo, "Hello", []any{"x"}, WithSubject("Re: %s")))

	assert.Equal(t, []model.Alert{
		{Type: model.TypeInfo, Text: "Saved doc", Subject: "Done"},
		{Type: model.TypeInfo, Text: "Hello", Subject: "Re: x"},
	}, fs.raw(t))
}

func TestStore_GetOnce_DropsStoredEmptyQueue(t *testing.T) {
	fs := newFakeSession()
	fs.data[DefaultKey] = []byte("[]")
	st := NewStore(fs)
	ctx := context.Background()

	// Filtered reads leave it alone
	alerts, err := st.GetOnce(ctx, model.TypeError)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	_, present := fs.data[DefaultKey]
	assert.True(t, present)

	alerts, err = st.GetOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	_, present = fs.data[DefaultKey]
	assert.False(t, present, "An empty queue must not be kept")
}
