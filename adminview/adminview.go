// Package adminview exposes a read-only view of prepared transactions
// over HTTP, using go-chi for routing and msgpack for the wire encoding
// — the same pairing the teacher's admin surface and mvcc snapshot
// encoding use, generalized to this table's shape.
package adminview

import (
	"net/http"

	"github.com/coralbase/twopc/gxact"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Row is one line of the read-only prepared-transactions view: only
// valid entries are ever surfaced, matching the user-facing operation's
// contract that invalid reservations are filtered out.
type Row struct {
	Transaction uint32 `msgpack:"transaction"`
	GID         string `msgpack:"gid"`
	Prepared    int64  `msgpack:"prepared"`
	OwnerOid    uint32 `msgpack:"owner_oid"`
	DatabaseOid uint32 `msgpack:"database_oid"`
}

// TableSnapshotter is the only capability this view needs from the
// GXact table.
type TableSnapshotter interface {
	SnapshotAll() []gxact.GXact
}

// Server serves the prepared-transactions view.
type Server struct {
	table TableSnapshotter
}

// NewServer returns a view server backed by table.
func NewServer(table TableSnapshotter) *Server {
	return &Server{table: table}
}

// Routes mounts the view's endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/prepared_transactions", s.listPrepared)
}

func (s *Server) listPrepared(w http.ResponseWriter, r *http.Request) {
	entries := s.table.SnapshotAll()
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		if !e.Valid {
			continue
		}
		rows = append(rows, Row{
			Transaction: uint32(e.DummyProc.XID),
			GID:         e.GID,
			Prepared:    e.PreparedAt,
			OwnerOid:    e.OwnerOid,
			DatabaseOid: e.DummyProc.DatabaseOid,
		})
	}

	body, err := msgpack.Marshal(rows)
	if err != nil {
		log.Error().Err(err).Msg("adminview: failed to encode prepared transactions")
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/msgpack")
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("adminview: failed to write response")
	}
}
