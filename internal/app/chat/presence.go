package chat

import (
	"slices"
	"sync"
	"time"
)

// Entry is one registered connection.
type Entry struct {
	ConnID   string
	UserID   int64
	Username string
	JoinedAt time.Time
}

// Removal describes what Unregister took away.
type Removal struct {
	Found  bool
	UserID int64

	// Rooms the connection was joined to.
	Rooms []int64

	// TypingRooms are the rooms whose typing flag this connection held.
	TypingRooms []int64

	// LastConnection is set when the user has no connection left.
	LastConnection bool
}

// Presence is the in-process projection of who is connected and which broadcast groups
// each connection belongs to. It is a cache: authorization never reads it.
type Presence struct {
	mu sync.RWMutex

	// users maps userID to its connections.
	users map[int64]map[string]Entry

	// conns maps connID to its owner and joined rooms.
	conns map[string]*connState

	// rooms maps roomID to its joined connections and their users.
	rooms map[int64]map[string]int64

	// typing maps roomID to typing users and the connection that set the flag.
	typing map[int64]map[int64]string
}

type connState struct {
	userID int64
	rooms  map[int64]struct{}
}

// NewPresence returns an empty store.
func NewPresence() *Presence {
	return &Presence{
		users:  make(map[int64]map[string]Entry),
		conns:  make(map[string]*connState),
		rooms:  make(map[int64]map[string]int64),
		typing: make(map[int64]map[int64]string),
	}
}

// Register adds e. It reports whether e is the user's first connection.
func (p *Presence) Register(e Entry) (first bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.conns[e.ConnID]; ok {
		return false
	}

	byConn, ok := p.users[e.UserID]
	if !ok {
		byConn = make(map[string]Entry)
		p.users[e.UserID] = byConn
	}
	first = len(byConn) == 0

	byConn[e.ConnID] = e
	p.conns[e.ConnID] = &connState{userID: e.UserID, rooms: make(map[int64]struct{})}

	return first
}

// Unregister removes connID from every room and typing set it is in.
// It is safe to call for an unknown or already removed connection.
func (p *Presence) Unregister(connID string) Removal {
	p.mu.Lock()
	defer p.mu.Unlock()

	cs, ok := p.conns[connID]
	if !ok {
		return Removal{}
	}

	userID := cs.userID
	rm := Removal{Found: true, UserID: userID}

	for roomID := range cs.rooms {
		rm.Rooms = append(rm.Rooms, roomID)
		if p.leave(connID, userID, roomID) {
			rm.TypingRooms = append(rm.TypingRooms, roomID)
		}
	}
	slices.Sort(rm.Rooms)
	slices.Sort(rm.TypingRooms)

	delete(p.conns, connID)

	if byConn, ok := p.users[userID]; ok {
		delete(byConn, connID)
		if len(byConn) == 0 {
			delete(p.users, userID)
			rm.LastConnection = true
		}
	}

	return rm
}

// Join adds connID to roomID's group. It returns false when connID is not registered,
// which happens when the connection closed during a storage round trip.
func (p *Presence) Join(connID string, roomID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cs, ok := p.conns[connID]
	if !ok {
		return false
	}

	members, ok := p.rooms[roomID]
	if !ok {
		members = make(map[string]int64)
		p.rooms[roomID] = members
	}

	cs.rooms[roomID] = struct{}{}
	members[connID] = cs.userID
	return true
}

// Leave removes connID from roomID's group. stoppedTyping reports whether the user's
// typing flag in the room was cleared as a result.
func (p *Presence) Leave(connID string, roomID int64) (left, stoppedTyping bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cs, ok := p.conns[connID]
	if !ok {
		return false, false
	}
	if _, in := cs.rooms[roomID]; !in {
		return false, false
	}

	delete(cs.rooms, roomID)
	return true, p.leave(connID, cs.userID, roomID)
}

// leave drops connID from the room maps. Callers hold p.mu.
func (p *Presence) leave(connID string, userID, roomID int64) (stoppedTyping bool) {
	if members, ok := p.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(p.rooms, roomID)
		}
	}

	if typers, ok := p.typing[roomID]; ok {
		if owner, typing := typers[userID]; typing && owner == connID {
			delete(typers, userID)
			stoppedTyping = true
		}
		if len(typers) == 0 {
			delete(p.typing, roomID)
		}
	}

	return stoppedTyping
}

// InRoom reports whether connID is in roomID's group.
func (p *Presence) InRoom(connID string, roomID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.rooms[roomID][connID]
	return ok
}

// Snapshot returns the distinct users with a connection in roomID, ascending.
func (p *Presence) Snapshot(roomID int64) []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := make(map[int64]struct{}, len(p.rooms[roomID]))
	users := make([]int64, 0, len(p.rooms[roomID]))
	for _, userID := range p.rooms[roomID] {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		users = append(users, userID)
	}
	slices.Sort(users)
	return users
}

// Connections returns the connections in roomID's group. When excludeUser is non-zero,
// that user's connections are left out.
func (p *Presence) Connections(roomID, excludeUser int64) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := make([]string, 0, len(p.rooms[roomID]))
	for connID, userID := range p.rooms[roomID] {
		if excludeUser != 0 && userID == excludeUser {
			continue
		}
		conns = append(conns, connID)
	}
	slices.Sort(conns)
	return conns
}

// Peers returns the connections of other users sharing at least one of rooms.
func (p *Presence) Peers(userID int64, rooms []int64) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := make(map[string]struct{})
	var conns []string
	for _, roomID := range rooms {
		for connID, other := range p.rooms[roomID] {
			if other == userID {
				continue
			}
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			conns = append(conns, connID)
		}
	}
	slices.Sort(conns)
	return conns
}

// IsOnline reports whether userID has any connection.
func (p *Presence) IsOnline(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.users[userID]) > 0
}

// StartTyping sets the typing flag of connID's user in roomID. It reports whether the
// flag changed. Connections outside the room's group are ignored.
func (p *Presence) StartTyping(connID string, roomID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.rooms[roomID][connID]
	if !ok {
		return false
	}

	typers, ok := p.typing[roomID]
	if !ok {
		typers = make(map[int64]string)
		p.typing[roomID] = typers
	}

	if _, already := typers[userID]; already {
		return false
	}
	typers[userID] = connID
	return true
}

// StopTyping clears the typing flag of connID's user in roomID, whichever of the user's
// connections set it. It reports whether the flag changed.
func (p *Presence) StopTyping(connID string, roomID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cs, ok := p.conns[connID]
	if !ok {
		return false
	}
	userID := cs.userID

	typers, ok := p.typing[roomID]
	if !ok {
		return false
	}
	if _, typing := typers[userID]; !typing {
		return false
	}

	delete(typers, userID)
	if len(typers) == 0 {
		delete(p.typing, roomID)
	}
	return true
}
