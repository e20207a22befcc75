package backfill

import (
	"context"
	"sort"

	"github.com/pinboard/pinboard/internal/rbac"
)

type testUser struct {
	id        int64
	superuser bool
}

type testPin struct {
	board       *int64
	description string
	tags        []string
}

type testBoard struct {
	name    string
	members map[int64]bool
}

// memStore is an in-memory Store and rbac.Store sharing one user table.
type memStore struct {
	users       map[int64]testUser
	boards      map[int64]*testBoard
	nextBoardID int64
	pins        map[int64]*testPin
	grants      map[rbac.Grant]struct{}
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[int64]testUser{},
		boards: map[int64]*testBoard{},
		pins:   map[int64]*testPin{},
		grants: map[rbac.Grant]struct{}{},
	}
}

func (m *memStore) addUser(id int64, superuser bool) {
	m.users[id] = testUser{id: id, superuser: superuser}
}

func (m *memStore) addBoard(name string) int64 {
	id, _ := m.CreateBoard(context.Background(), name)
	return id
}

func (m *memStore) addPin(id int64, board *int64, description string, tags ...string) {
	m.pins[id] = &testPin{board: board, description: description, tags: tags}
}

func (m *memStore) runner() *memRunner {
	return &memRunner{store: m, perms: rbac.NewService(m)}
}

func (m *memStore) boardByName(name string) (int64, int) {
	var id int64
	count := 0
	for bid, b := range m.boards {
		if b.name == name {
			id = bid
			count++
		}
	}
	return id, count
}

func (m *memStore) memberIDs(boardID int64) []int64 {
	var ids []int64
	if b, ok := m.boards[boardID]; ok {
		for id := range b.members {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *memStore) grantsOn(boardID int64) []rbac.Grant {
	var out []rbac.Grant
	for g := range m.grants {
		if g.Object == rbac.BoardObject(boardID) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Permission < out[j].Permission
	})
	return out
}

type memRunner struct {
	store Store
	perms Permissions
}

func (r *memRunner) Run(ctx context.Context, fn func(context.Context, Store, Permissions) error) error {
	return fn(ctx, r.store, r.perms)
}

// Store

func (m *memStore) FindBoardByName(ctx context.Context, name string) (int64, bool, error) {
	var ids []int64
	for id, b := range m.boards {
		if b.name == name {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[0], true, nil
}

func (m *memStore) CreateBoard(ctx context.Context, name string) (int64, error) {
	m.nextBoardID++
	m.boards[m.nextBoardID] = &testBoard{name: name, members: map[int64]bool{}}
	return m.nextBoardID, nil
}

func (m *memStore) EligibleUserIDs(ctx context.Context, anonymousID int64) ([]int64, error) {
	var ids []int64
	for id, u := range m.users {
		if id != anonymousID && !u.superuser {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) AddMember(ctx context.Context, boardID, userID int64) error {
	m.boards[boardID].members[userID] = true
	return nil
}

func (m *memStore) AssignUnfiledPins(ctx context.Context, boardID int64) (int64, error) {
	var n int64
	for _, p := range m.pins {
		if p.board == nil {
			id := boardID
			p.board = &id
			n++
		}
	}
	return n, nil
}

func (m *memStore) BoardIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id := range m.boards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) Members(ctx context.Context, boardID int64) ([]Member, error) {
	var out []Member
	for _, id := range m.memberIDs(boardID) {
		out = append(out, Member{UserID: id, IsSuperuser: m.users[id].superuser})
	}
	return out, nil
}

func (m *memStore) ClearMembers(ctx context.Context, boardID int64) error {
	m.boards[boardID].members = map[int64]bool{}
	return nil
}

func (m *memStore) DeleteBoard(ctx context.Context, boardID int64) error {
	delete(m.boards, boardID)
	return nil
}

func (m *memStore) UnfileAllPins(ctx context.Context) (int64, error) {
	var n int64
	for _, p := range m.pins {
		if p.board != nil {
			p.board = nil
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountUnfiledPins(ctx context.Context) (int64, error) {
	var n int64
	for _, p := range m.pins {
		if p.board == nil {
			n++
		}
	}
	return n, nil
}

// rbac.Store

func (m *memStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := m.users[userID]
	return ok, nil
}

func (m *memStore) Insert(ctx context.Context, g rbac.Grant) error {
	m.grants[g] = struct{}{}
	return nil
}

func (m *memStore) Delete(ctx context.Context, g rbac.Grant) error {
	delete(m.grants, g)
	return nil
}

func (m *memStore) DeleteForObject(ctx context.Context, obj rbac.Object) (int64, error) {
	var n int64
	for g := range m.grants {
		if g.Object == obj {
			delete(m.grants, g)
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListForUser(ctx context.Context, userID int64, obj rbac.Object) ([]string, error) {
	var perms []string
	for g := range m.grants {
		if g.UserID == userID && g.Object == obj {
			perms = append(perms, g.Permission)
		}
	}
	sort.Strings(perms)
	return perms, nil
}

func (m *memStore) ListForObject(ctx context.Context, obj rbac.Object) ([]rbac.Grant, error) {
	var out []rbac.Grant
	for g := range m.grants {
		if g.Object == obj {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) ObjectIDs(ctx context.Context, userID int64, perm, objectType string) ([]int64, error) {
	var ids []int64
	for g := range m.grants {
		if g.UserID == userID && g.Permission == perm && g.Object.Type == objectType {
			ids = append(ids, g.Object.ID)
		}
	}
	return ids, nil
}

var _ rbac.Store = (*memStore)(nil)
