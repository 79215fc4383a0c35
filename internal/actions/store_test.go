package actions

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/actionlib/internal/storage"
	apperrors "github.com/dotcommander/actionlib/pkg/actionlib/errors"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return reopen(dir), dir
}

func reopen(dir string) *Store {
	return NewStore(storage.NewFileSystem(dir), "actions.json",
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func strPtr(s string) *string { return &s }

func seed(t *testing.T, st *Store, actions ...Action) []Action {
	t.Helper()
	added := make([]Action, 0, len(actions))
	for _, a := range actions {
		got, err := st.Add(context.Background(), a)
		require.NoError(t, err)
		added = append(added, got)
	}
	return added
}

func writeFile(t *testing.T, dir, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "actions.json"), []byte(doc), 0644))
}

func TestAddAssignsIDAndDefaults(t *testing.T) {
	st, _ := newTestStore(t)

	a, err := st.Add(context.Background(), Action{ID: "ignored", Name: "  login  ", Code: "click()"})
	require.NoError(t, err)

	assert.NotEqual(t, "ignored", a.ID)
	assert.Len(t, a.ID, 36)
	assert.Equal(t, "login", a.Name)
	assert.Equal(t, DefaultCategory, a.Category)
	assert.Empty(t, a.GeneratedCode)
	assert.Equal(t, []string{DefaultCategory}, st.Categories())
}

func TestAddRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"blank name", Action{Name: "   ", Code: "x"}},
		{"name too long", Action{Name: strings.Repeat("n", 201)}},
		{"category too long", Action{Name: "ok", Category: strings.Repeat("c", 101)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, dir := newTestStore(t)

			_, err := st.Add(context.Background(), tt.action)
			assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
			assert.Zero(t, st.Len())
			assert.NoFileExists(t, filepath.Join(dir, "actions.json"))
		})
	}
}

func TestMutationsPersist(t *testing.T) {
	ctx := context.Background()
	st, dir := newTestStore(t)

	added := seed(t, st,
		Action{Name: "open", Description: "opens page", Code: "open()", Category: "nav"},
		Action{Name: "close", Code: "close()", Category: "nav"},
	)

	_, err := st.Update(ctx, added[0].ID, Fields{
		Code:     strPtr("open('/home')"),
		Category: strPtr("pages"),
	})
	require.NoError(t, err)

	_, err = st.Remove(ctx, added[1].ID)
	require.NoError(t, err)

	reloaded := reopen(dir)
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, 1, reloaded.Len())

	got, ok := reloaded.Get(added[0].ID)
	require.True(t, ok)
	assert.Equal(t, "open", got.Name)
	assert.Equal(t, "opens page", got.Description)
	assert.Equal(t, "open('/home')", got.Code)
	assert.Equal(t, "pages", got.Category)
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	st, _ := newTestStore(t)
	a := seed(t, st, Action{Name: "a", Description: "d", Code: "c", Category: "x", GeneratedCode: "g"})[0]

	got, err := st.Update(context.Background(), a.ID, Fields{Description: strPtr("new")})
	require.NoError(t, err)

	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, "new", got.Description)
	assert.Equal(t, "c", got.Code)
	assert.Equal(t, "x", got.Category)
	assert.Equal(t, "g", got.GeneratedCode)
}

func TestUpdateRegistersNewCategory(t *testing.T) {
	st, _ := newTestStore(t)
	a := seed(t, st, Action{Name: "a", Category: "old"})[0]

	_, err := st.Update(context.Background(), a.ID, Fields{Category: strPtr("new")})
	require.NoError(t, err)

	assert.Equal(t, []string{"old", "new"}, st.Categories())
}

func TestUpdateInvalidLeavesActionUnchanged(t *testing.T) {
	st, _ := newTestStore(t)
	a := seed(t, st, Action{Name: "a", Code: "c"})[0]

	_, err := st.Update(context.Background(), a.ID, Fields{Name: strPtr(""), Code: strPtr("changed")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidAction)

	got, _ := st.Get(a.ID)
	assert.Equal(t, a, got)
}

func TestUnknownID(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	seed(t, st, Action{Name: "a"})

	_, err := st.Update(ctx, "nope", Fields{Name: strPtr("b")})
	assert.ErrorIs(t, err, apperrors.ErrActionNotFound)

	_, err = st.Remove(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrActionNotFound)

	_, ok := st.Get("nope")
	assert.False(t, ok)
}

func TestRemoveKeepsCategory(t *testing.T) {
	st, _ := newTestStore(t)
	a := seed(t, st, Action{Name: "a", Category: "solo"})[0]

	_, err := st.Remove(context.Background(), a.ID)
	require.NoError(t, err)

	assert.Zero(t, st.Len())
	assert.Equal(t, []string{"solo"}, st.Categories())
	assert.Equal(t, []string{"solo"}, st.UnusedCategories())
}

func TestDuplicateNames(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	added := seed(t, st,
		Action{Name: "login", Code: "v1"},
		Action{Name: "login", Code: "v2"},
		Action{Name: "logout"},
	)

	assert.Len(t, st.FindByName("login"), 2)

	_, err := st.Resolve("login")
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousName)

	got, err := st.Resolve("logout")
	require.NoError(t, err)
	assert.Equal(t, added[2].ID, got.ID)

	// Each duplicate stays addressable by id
	_, err = st.Remove(ctx, added[1].ID)
	require.NoError(t, err)

	got, err = st.Resolve("login")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Code)
}

func TestResolveByIDPrefix(t *testing.T) {
	st, _ := newTestStore(t)
	a := seed(t, st, Action{Name: "a"})[0]

	got, err := st.Resolve(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = st.Resolve(a.ShortID())
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = st.Resolve("missing")
	assert.ErrorIs(t, err, apperrors.ErrActionNotFound)
}

func names(seq func(func(Action) bool)) []string {
	var out []string
	for a := range seq {
		out = append(out, a.Name)
	}
	return out
}

func TestList(t *testing.T) {
	st, _ := newTestStore(t)
	seed(t, st,
		Action{Name: "Foo button", Code: "click()", Category: "ui"},
		Action{Name: "login", Description: "uses FOO creds", Category: "auth"},
		Action{Name: "wait", Code: "sleep(foo)", Category: "ui"},
		Action{Name: "bar", Description: "nothing", Category: "misc"},
	)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty query yields all", "", []string{"Foo button", "login", "wait", "bar"}},
		{"matches name description and code ignoring case", "foo", []string{"Foo button", "login", "wait"}},
		{"upper-case query", "BAR", []string{"bar"}},
		{"no match", "zzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(st.List(tt.query)))
		})
	}
}

func TestListByCategory(t *testing.T) {
	st, _ := newTestStore(t)
	seed(t, st,
		Action{Name: "a", Category: "ui"},
		Action{Name: "b", Category: "auth"},
		Action{Name: "c", Category: "ui"},
	)

	assert.Equal(t, []string{"a", "c"}, names(st.ListByCategory("ui")))
	assert.Equal(t, []string{"b"}, names(st.ListByCategory("auth")))
	assert.Equal(t, []string{"a", "b", "c"}, names(st.ListByCategory(AllCategories)))
	assert.Nil(t, names(st.ListByCategory("UI")))
}

func TestListIsRestartable(t *testing.T) {
	st, _ := newTestStore(t)
	seed(t, st, Action{Name: "a"}, Action{Name: "b"})

	seq := st.List("")
	assert.Equal(t, []string{"a", "b"}, names(seq))

	seed(t, st, Action{Name: "c"})
	assert.Equal(t, []string{"a", "b", "c"}, names(seq))

	// Early exit
	for a := range seq {
		assert.Equal(t, "a", a.Name)
		break
	}
}

func TestCleanUnusedCategories(t *testing.T) {
	st, _ := newTestStore(t)
	added := seed(t, st,
		Action{Name: "a", Category: "ui"},
		Action{Name: "b", Category: "auth"},
	)
	assert.True(t, st.AddCategory("planned"))
	assert.False(t, st.AddCategory("ui"))
	assert.False(t, st.AddCategory("  "))

	_, err := st.Remove(context.Background(), added[1].ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"auth", "planned"}, st.UnusedCategories())

	removed := st.CleanUnusedCategories()
	assert.Equal(t, []string{"auth", "planned"}, removed)
	assert.Equal(t, []string{"ui"}, st.Categories())
	assert.Empty(t, st.UnusedCategories())
	assert.Empty(t, st.CleanUnusedCategories())
}

func TestEveryActionCategoryIsRegistered(t *testing.T) {
	ctx := context.Background()
	st, dir := newTestStore(t)
	writeFile(t, dir, `[
		{"name": "a", "description": "", "code": "", "category": "loaded"},
		{"name": "b", "description": "", "code": ""}
	]`)
	require.NoError(t, st.Load(ctx))
	seed(t, st, Action{Name: "c", Category: "added"})

	cats := st.Categories()
	for a := range st.All() {
		assert.True(t, slices.Contains(cats, a.Category), "category %q not registered", a.Category)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, dir := newTestStore(t)
	added := seed(t, st,
		Action{Name: "one", Description: "<b>html</b> & more", Code: "print('привет')\n\tx = 1", Category: "a"},
		Action{Name: "two", Code: "", Category: "b", GeneratedCode: "def f():\n    pass"},
		Action{Name: "one", Description: "duplicate name", Category: "a"},
	)

	reloaded := reopen(dir)
	require.NoError(t, reloaded.Load(ctx))

	assert.Equal(t, added, slices.Collect(reloaded.All()))
	assert.Equal(t, []string{"a", "b"}, reloaded.Categories())
}

func TestSavedFileLayout(t *testing.T) {
	st, dir := newTestStore(t)
	seed(t, st, Action{Name: "a", Description: "d", Code: "c", Category: "x"})

	data, err := os.ReadFile(filepath.Join(dir, "actions.json"))
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)

	keys := make([]string, 0, len(records[0]))
	for k := range records[0] {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"id", "name", "description", "code", "category", "generated_code"}, keys)
}

func TestLoadOlderRecords(t *testing.T) {
	st, dir := newTestStore(t)
	writeFile(t, dir, `[
		{"name": "old", "description": "from v1", "code": "x()"},
		{"name": "null cat", "description": "", "code": "", "category": null, "generated_code": null},
		{"name": "with id", "description": "", "code": "", "category": "c", "generated_code": "g", "id": "fixed-id"}
	]`)

	require.NoError(t, st.Load(context.Background()))
	all := slices.Collect(st.All())
	require.Len(t, all, 3)

	assert.Equal(t, DefaultCategory, all[0].Category)
	assert.Empty(t, all[0].GeneratedCode)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, DefaultCategory, all[1].Category)
	assert.Equal(t, "fixed-id", all[2].ID)
	assert.Equal(t, "g", all[2].GeneratedCode)
	assert.Equal(t, []string{DefaultCategory, "c"}, st.Categories())
}

func TestLoadRepairsDuplicateIDs(t *testing.T) {
	st, dir := newTestStore(t)
	writeFile(t, dir, `[
		{"id": "same", "name": "a", "description": "", "code": ""},
		{"id": "same", "name": "b", "description": "", "code": ""}
	]`)

	require.NoError(t, st.Load(context.Background()))
	all := slices.Collect(st.All())
	require.Len(t, all, 2)
	assert.Equal(t, "same", all[0].ID)
	assert.NotEqual(t, "same", all[1].ID)
}

func TestLoadCorruptFileResets(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"truncated", `[{"name": "a"`},
		{"not a list", `{"name": "a"}`},
		{"empty file", ``},
		{"missing code", `[{"name": "a", "description": ""}]`},
		{"wrong field type", `[{"name": 1, "description": "", "code": ""}]`},
		{"unknown field", `[{"name": "a", "description": "", "code": "", "priority": 3}]`},
		{"trailing data", `[] []`},
		{"null element", `[null]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st, dir := newTestStore(t)
			seed(t, st, Action{Name: "before", Category: "kept"})
			writeFile(t, dir, tt.doc)

			err := st.Load(ctx)
			require.Error(t, err)
			assert.True(t, apperrors.IsCorrupt(err), "want PersistenceCorruptError, got %v", err)

			assert.Zero(t, st.Len())
			assert.Contains(t, st.Categories(), "kept")

			// Still usable after the reset
			_, err = st.Add(ctx, Action{Name: "after"})
			require.NoError(t, err)
			reloaded := reopen(dir)
			require.NoError(t, reloaded.Load(ctx))
			assert.Equal(t, []string{"after"}, names(reloaded.All()))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	st, _ := newTestStore(t)
	require.NoError(t, st.Load(context.Background()))
	assert.Zero(t, st.Len())
	assert.Empty(t, st.Categories())
}

func TestSaveFailureKeepsMemoryChange(t *testing.T) {
	dir := t.TempDir()
	// The actions path is a directory, so every write fails
	require.NoError(t, os.Mkdir(filepath.Join(dir, "actions.json"), 0755))
	st := reopen(dir)

	a, err := st.Add(context.Background(), Action{Name: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving actions")

	got, ok := st.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "a", got.Name)
}

func TestDeclaredCategoryDoesNotOutliveStore(t *testing.T) {
	ctx := context.Background()
	st, dir := newTestStore(t)
	seed(t, st, Action{Name: "login", Category: "auth"})

	assert.True(t, st.AddCategory("drafts"))
	assert.False(t, st.AddCategory("drafts"))
	assert.False(t, st.AddCategory("  "))
	require.NoError(t, st.Save(ctx))
	assert.Equal(t, []string{"auth", "drafts"}, st.Categories())

	reloaded := reopen(dir)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{"auth"}, reloaded.Categories())
}
