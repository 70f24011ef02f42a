// Package txnapi is the minimal HTTP surface that drives the prepare/finish
// state machine: PREPARE TRANSACTION, COMMIT PREPARED and ROLLBACK PREPARED,
// routed with go-chi and encoded with msgpack the same way adminview's
// read-only view is, so the write path this core exists for is actually
// reachable from outside the process rather than only from tests.
//
// An HTTP request has no durable session the way a real database backend
// connection does, so each request mints its own synthetic backend id from
// an id.Generator for the duration of the call.
package txnapi

import (
	"net/http"

	"github.com/coralbase/twopc/gxact"
	"github.com/coralbase/twopc/id"
	"github.com/coralbase/twopc/walrecord"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Subsystem is the capability surface this API drives. *twopc.Subsystem
// satisfies it directly.
type Subsystem interface {
	Reserve(backend int, xid gxact.XID, gid string, preparedAt int64, ownerOid, databaseOid uint32) (gxact.Ref, error)
	EndPrepare(backend int, ref gxact.Ref, payload []byte, ceilingBytes int) error
	FinishPrepared(gid string, backend int, callerRole, callerDatabase uint32, superuser, coordinatorMode, isCommit, raiseIfMissing bool) (bool, error)
	Cleanup(backend int) error
}

// Server drives Subsystem from HTTP requests.
type Server struct {
	sys          Subsystem
	ids          id.Generator
	ceilingBytes int
}

// NewServer returns a write-path server. ceilingBytes caps the assembled
// prepare record's size; zero disables the check.
func NewServer(sys Subsystem, ids id.Generator, ceilingBytes int) *Server {
	return &Server{sys: sys, ids: ids, ceilingBytes: ceilingBytes}
}

// relFileNode mirrors gxact.RelFileNode with msgpack tags, so the wire
// representation doesn't depend on the domain struct's field order.
type relFileNode struct {
	SpcOid uint32 `msgpack:"spc_oid"`
	DBOid  uint32 `msgpack:"db_oid"`
	RelOid uint32 `msgpack:"rel_oid"`
}

func (r relFileNode) toDomain() gxact.RelFileNode {
	return gxact.RelFileNode{SpcOid: r.SpcOid, DBOid: r.DBOid, RelOid: r.RelOid}
}

type prepareRequest struct {
	XID         uint32        `msgpack:"xid"`
	GID         string        `msgpack:"gid"`
	OwnerOid    uint32        `msgpack:"owner_oid"`
	DatabaseOid uint32        `msgpack:"database_oid"`
	PreparedAt  int64         `msgpack:"prepared_at"`
	Subxacts    []uint32      `msgpack:"subxacts"`
	CommitRels  []relFileNode `msgpack:"commit_rels"`
	AbortRels   []relFileNode `msgpack:"abort_rels"`
}

type finishRequest struct {
	GID             string `msgpack:"gid"`
	CallerRole      uint32 `msgpack:"caller_role"`
	CallerDatabase  uint32 `msgpack:"caller_database"`
	Superuser       bool   `msgpack:"superuser"`
	CoordinatorMode bool   `msgpack:"coordinator_mode"`
	RaiseIfMissing  bool   `msgpack:"raise_if_missing"`
}

type finishResponse struct {
	Found bool `msgpack:"found"`
}

// Routes mounts the write-path endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/prepare_transaction", s.prepareTransaction)
	r.Post("/commit_prepared", s.commitPrepared)
	r.Post("/rollback_prepared", s.rollbackPrepared)
}

func (s *Server) nextBackend() int {
	return int(s.ids.NextID() & 0x7fffffff)
}

func (s *Server) prepareTransaction(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := msgpack.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	subxacts := make([]gxact.XID, len(req.Subxacts))
	for i, x := range req.Subxacts {
		subxacts[i] = gxact.XID(x)
	}
	commitRels := make([]gxact.RelFileNode, len(req.CommitRels))
	for i, rel := range req.CommitRels {
		commitRels[i] = rel.toDomain()
	}
	abortRels := make([]gxact.RelFileNode, len(req.AbortRels))
	for i, rel := range req.AbortRels {
		abortRels[i] = rel.toDomain()
	}

	backend := s.nextBackend()
	ref, err := s.sys.Reserve(backend, gxact.XID(req.XID), req.GID, req.PreparedAt, req.OwnerOid, req.DatabaseOid)
	if err != nil {
		log.Warn().Err(err).Str("gid", req.GID).Msg("txnapi: reserve failed")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	b := walrecord.NewBuilder(s.ceilingBytes)
	if err := b.Start(gxact.XID(req.XID), req.DatabaseOid, req.PreparedAt, req.OwnerOid, req.GID, subxacts, commitRels, abortRels); err != nil {
		_ = s.sys.Cleanup(backend)
		log.Warn().Err(err).Str("gid", req.GID).Msg("txnapi: failed to assemble prepare record")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	payload, err := b.Finish()
	if err != nil {
		_ = s.sys.Cleanup(backend)
		log.Warn().Err(err).Str("gid", req.GID).Msg("txnapi: failed to seal prepare record")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.sys.EndPrepare(backend, ref, payload, s.ceilingBytes); err != nil {
		log.Error().Err(err).Str("gid", req.GID).Msg("txnapi: end_prepare failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.sys.Cleanup(backend); err != nil {
		log.Error().Err(err).Str("gid", req.GID).Msg("txnapi: post-prepare cleanup failed")
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) commitPrepared(w http.ResponseWriter, r *http.Request) {
	s.finish(w, r, true)
}

func (s *Server) rollbackPrepared(w http.ResponseWriter, r *http.Request) {
	s.finish(w, r, false)
}

func (s *Server) finish(w http.ResponseWriter, r *http.Request, isCommit bool) {
	var req finishRequest
	if err := msgpack.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	backend := s.nextBackend()
	found, err := s.sys.FinishPrepared(req.GID, backend, req.CallerRole, req.CallerDatabase, req.Superuser, req.CoordinatorMode, isCommit, req.RaiseIfMissing)
	if err != nil {
		log.Warn().Err(err).Str("gid", req.GID).Bool("commit", isCommit).Msg("txnapi: finish_prepared failed")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err := s.sys.Cleanup(backend); err != nil {
		log.Error().Err(err).Str("gid", req.GID).Msg("txnapi: post-finish cleanup failed")
	}

	body, err := msgpack.Marshal(finishResponse{Found: found})
	if err != nil {
		log.Error().Err(err).Msg("txnapi: failed to encode finish response")
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	_, _ = w.Write(body)
}
