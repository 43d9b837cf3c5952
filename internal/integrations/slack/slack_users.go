package slackbot

import (
	"log"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

// memberRefresh bounds how often a non-operator command may trigger a new
// users.list call while some configured operator names are still unresolved.
const memberRefresh = 5 * time.Minute

var slackUserID = regexp.MustCompile(`^[UW][A-Z0-9]{8,}$`)

type userLister interface {
	GetUsers(options ...slack.GetUsersOption) ([]slack.User, error)
}

// Operators decides who may change complaint status. Entries from config may
// be user IDs or names; names are matched against the workspace member list
// and re-tried later for people who join after startup.
type Operators struct {
	api userLister
	now func() time.Time

	mu         sync.Mutex
	ids        map[string]bool
	pending    []string
	lastLookup time.Time
}

func NewOperators(api userLister, entries []string) *Operators {
	o := &Operators{api: api, now: time.Now, ids: make(map[string]bool)}
	for _, raw := range entries {
		entry := strings.TrimPrefix(strings.TrimSpace(raw), "@")
		switch {
		case entry == "":
		case slackUserID.MatchString(entry):
			o.ids[entry] = true
		case !slices.Contains(o.pending, entry):
			o.pending = append(o.pending, entry)
		}
	}
	return o
}

// Resolve looks up every pending name and returns the ones still unknown.
func (o *Operators) Resolve() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolveLocked()
}

func (o *Operators) resolveLocked() ([]string, error) {
	if len(o.pending) == 0 {
		return nil, nil
	}
	o.lastLookup = o.now()
	users, err := o.api.GetUsers()
	if err != nil {
		log.Printf("resolve operators: get users error: %v", err)
		return slices.Clone(o.pending), err
	}

	byName := make(map[string]string)
	for _, u := range users {
		if u.Deleted || u.IsBot {
			continue
		}
		for _, n := range []string{u.Name, u.RealName, u.Profile.DisplayName} {
			key := strings.ToLower(strings.TrimSpace(n))
			if _, taken := byName[key]; key != "" && !taken {
				byName[key] = u.ID
			}
		}
	}

	var still []string
	for _, name := range o.pending {
		if id, ok := byName[strings.ToLower(name)]; ok {
			o.ids[id] = true
			log.Printf("resolve operators: name=%q id=%s", name, id)
		} else {
			still = append(still, name)
		}
	}
	o.pending = still
	log.Printf("resolve operators: ids=%d unresolved=%d", len(o.ids), len(still))
	return slices.Clone(still), nil
}

// IsOperator reports whether userID may run operator commands. An unknown
// user triggers one more lookup per memberRefresh while names are pending.
func (o *Operators) IsOperator(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ids[userID] {
		return true
	}
	if len(o.pending) == 0 || o.now().Sub(o.lastLookup) < memberRefresh {
		return false
	}
	if _, err := o.resolveLocked(); err != nil {
		return false
	}
	return o.ids[userID]
}

// IDs returns the resolved operator IDs, sorted.
func (o *Operators) IDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.ids))
	for id := range o.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
