package api

import (
	"net/http"

	"github.com/shaiso/groupexec/internal/scheduler"
)

// ListSchedules возвращает расписания из конфигурации и их состояние.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	entries := []scheduler.EntryStatus{}
	if h.schedules != nil {
		entries = h.schedules.Entries()
	}
	List(w, entries, len(entries))
}

// ListGroups возвращает имена известных групп.
// GET /api/v1/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups := []string{}
	if h.groups != nil {
		groups = h.groups.Groups()
	}
	List(w, groups, len(groups))
}
