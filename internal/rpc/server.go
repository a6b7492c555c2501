package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/catalog"
	"github.com/barc/catalog/internal/purge"
	"github.com/barc/catalog/internal/types"
)

// ErrDaemonUnavailable reports that no master endpoint could be
// discovered, grounded on the teacher's rpc.ErrDaemonUnavailable.
var ErrDaemonUnavailable = fmt.Errorf("rpc: daemon unavailable")

// DiscoverEndpoint resolves the Unix-domain socket a client should dial
// to reach the catalog master, mirroring the teacher's endpoint_unix.go.
func DiscoverEndpoint(socketPath string) (network, address string, err error) {
	if socketPath == "" {
		return "", "", ErrDaemonUnavailable
	}
	if _, err := os.Stat(socketPath); err != nil {
		return "", "", ErrDaemonUnavailable
	}
	return "unix", socketPath, nil
}

// Server dispatches forwarded commands against one Handle, serving each
// accepted connection on its own goroutine, newline-delimited JSON in
// each direction
// (grounded on the teacher's Server over a Unix socket in server_core.go,
// scaled from its ~100-operation issue-tracker surface down to the dozen
// INDEX_* operations this engine exposes).
type Server struct {
	handle   *catalog.Handle
	purge    *purge.Engine
	listener net.Listener
}

// NewServer wraps handle and its purge engine for serving over socketPath.
func NewServer(socketPath string, handle *catalog.Handle, purgeEngine *purge.Engine) (*Server, error) {
	_ = os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen %s: %w", socketPath, err)
	}
	return &Server{handle: handle, purge: purgeEngine, listener: l}, nil
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		req, err := DecodeRequest(scanner.Bytes())
		if err != nil {
			enc.Encode(ErrorResponse("", err))
			continue
		}
		resp := s.dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	result, err := dispatch(ctx, s.handle, s.purge, req)
	if err != nil {
		return ErrorResponse(req.RequestID, err)
	}
	return OKResponse(req.RequestID, result)
}

// Dispatch runs one Request against handle and returns its string-map
// result. It is exported so an in-process caller (the CLI, the
// maintenance worker) can invoke the same table a remote client gets,
// without a purge engine on hand for operations that don't need one.
func Dispatch(ctx context.Context, h *catalog.Handle, req Request) (map[string]string, error) {
	return dispatch(ctx, h, nil, req)
}

func dispatch(ctx context.Context, h *catalog.Handle, eng *purge.Engine, req Request) (map[string]string, error) {
	p := req.Params
	switch req.Operation {
	case OpNewUUID:
		id, err := h.NewUUID(ctx, p["job_uuid"])
		if err != nil {
			return nil, err
		}
		return map[string]string{"uuidId": id.String()}, nil

	case OpNewEntity:
		archiveType, err := types.ParseArchiveType(p["archive_type"])
		if err != nil {
			return nil, err
		}
		created, err := parseTime(p["created_at"])
		if err != nil {
			return nil, err
		}
		id, err := h.NewEntity(ctx, catalog.NewEntityParams{
			JobUUID:      p["job_uuid"],
			ScheduleUUID: p["schedule_uuid"],
			Host:         p["host"],
			User:         p["user"],
			ArchiveType:  archiveType,
			Created:      created,
			Locked:       p["locked"] == "1",
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"entityId": id.String()}, nil

	case OpNewStorage:
		entityID, err := parseID(p["entity_id"], types.TypeEntity)
		if err != nil {
			return nil, err
		}
		uuidID, err := parseID(p["uuid_id"], types.TypeUUID)
		if err != nil {
			return nil, err
		}
		state, err := types.ParseState(p["state"])
		if err != nil {
			return nil, err
		}
		mode, err := types.ParseMode(p["mode"])
		if err != nil {
			return nil, err
		}
		created, err := parseTime(p["created_at"])
		if err != nil {
			return nil, err
		}
		size, err := strconv.ParseUint(p["size"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rpc: invalid size %q: %w", p["size"], err)
		}
		id, err := h.NewStorage(ctx, catalog.NewStorageParams{
			UUIDID:   uuidID,
			EntityID: entityID,
			Host:     p["host"],
			User:     p["user"],
			Name:     p["name"],
			Created:  created,
			Size:     size,
			State:    state,
			Mode:     mode,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"storageId": id.String()}, nil

	case OpAssignEntityToUUID:
		entityID, err := parseID(p["entity_id"], types.TypeEntity)
		if err != nil {
			return nil, err
		}
		return nil, h.AssignEntityToUUID(ctx, entityID, p["new_job_uuid"])

	case OpAssignStorage:
		storageID, err := parseID(p["storage_id"], types.TypeStorage)
		if err != nil {
			return nil, err
		}
		entityID, err := parseID(p["new_entity_id"], types.TypeEntity)
		if err != nil {
			return nil, err
		}
		return nil, h.AssignStorageToEntity(ctx, aggregate.New(nil), storageID, entityID)

	case OpLockEntity:
		id, err := parseID(p["entity_id"], types.TypeEntity)
		if err != nil {
			return nil, err
		}
		return nil, h.LockEntity(ctx, id)

	case OpUnlockEntity:
		id, err := parseID(p["entity_id"], types.TypeEntity)
		if err != nil {
			return nil, err
		}
		return nil, h.UnlockEntity(ctx, id)

	case OpDeleteStorage:
		if eng == nil {
			return nil, fmt.Errorf("rpc: delete_storage: no purge engine wired")
		}
		id, err := parseID(p["storage_id"], types.TypeStorage)
		if err != nil {
			return nil, err
		}
		return nil, eng.DeleteStorage(ctx, id.Value)

	case OpFindEntity:
		id, err := parseID(p["entity_id"], types.TypeEntity)
		if err != nil {
			return nil, err
		}
		e, err := h.FindEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]string{"jobUuid": e.JobUUID, "host": e.Host, "user": e.User}, nil

	case OpFindStorage:
		id, err := parseID(p["storage_id"], types.TypeStorage)
		if err != nil {
			return nil, err
		}
		st, err := h.FindStorageByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]string{"name": st.Name, "state": st.State.String(), "mode": st.Mode.String()}, nil

	case OpFindNewest:
		n, err := h.FindNewestByName(ctx, p["name"])
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"entryId":   types.NewEntryID(n.EntryID).String(),
			"storageId": types.NewStorageID(n.StorageID).String(),
			"uuidId":    types.NewUUIDID(n.UUIDID).String(),
			"entityId":  types.NewEntityID(n.EntityID).String(),
			"type":      n.Type.String(),
		}, nil

	case OpListEntities, OpListStorages, OpListEntries, OpStats:
		return nil, fmt.Errorf("rpc: %s: use the local query API, not forwarded RPC (bulk rows don't fit a string map)", req.Operation)

	default:
		return nil, fmt.Errorf("rpc: unknown operation %q", req.Operation)
	}
}

func parseID(s string, want types.IndexType) (types.IndexId, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return types.NONE, fmt.Errorf("rpc: invalid id %q: %w", s, err)
	}
	id := types.IndexId{Type: want, Value: n}
	if err := types.RequireType("rpc.parseID", want, id); err != nil {
		return types.NONE, err
	}
	return id, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("rpc: invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
