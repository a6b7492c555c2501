package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/barc/catalog/internal/aggregate"
	"github.com/barc/catalog/internal/catalog"
	"github.com/barc/catalog/internal/storage/sqlite"
	"github.com/barc/catalog/internal/types"
)

func openTestHandle(t *testing.T) *catalog.Handle {
	t.Helper()
	store := sqlite.New()
	h, err := catalog.Create(context.Background(), store, ":memory:", catalog.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

// TestDispatchNewUUIDAndEntity covers the basic Dispatch path end-to-end
// against the in-process entrypoint, mirroring how the CLI invokes the
// same table a remote client gets without a purge engine on hand.
func TestDispatchNewUUIDAndEntity(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)

	resp, err := Dispatch(ctx, h, Request{Operation: OpNewUUID, Params: map[string]string{"job_uuid": "11111111-1111-1111-1111-111111111111"}})
	if err != nil {
		t.Fatalf("Dispatch(OpNewUUID): %v", err)
	}
	if resp["uuidId"] == "" {
		t.Fatal("Dispatch(OpNewUUID) returned no uuidId")
	}

	resp, err = Dispatch(ctx, h, Request{Operation: OpNewEntity, Params: map[string]string{
		"job_uuid":     "11111111-1111-1111-1111-111111111111",
		"archive_type": "NORMAL",
		"created_at":   time.Now().Format(time.RFC3339),
	}})
	if err != nil {
		t.Fatalf("Dispatch(OpNewEntity): %v", err)
	}
	if resp["entityId"] == "" {
		t.Fatal("Dispatch(OpNewEntity) returned no entityId")
	}
}

func TestDispatchUnknownOperation(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)

	if _, err := Dispatch(ctx, h, Request{Operation: "INDEX_BOGUS"}); err == nil {
		t.Fatal("expected an error for an unknown operation")
	}
}

// TestDispatchDeleteStorageNeedsEngine covers the guard added alongside
// the purge engine's trigger wiring: without one wired, delete_storage
// must fail loudly rather than silently doing nothing.
func TestDispatchDeleteStorageNeedsEngine(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)

	_, err := Dispatch(ctx, h, Request{Operation: OpDeleteStorage, Params: map[string]string{"storage_id": "1"}})
	if err == nil {
		t.Fatal("expected an error when no purge engine is wired")
	}
}

// TestDispatchFindNewest exercises the new INDEX_FIND_NEWEST case end to
// end: seed an entity/storage/file through the catalog handle, then look
// it up by name the way a client forwarding the operation would.
func TestDispatchFindNewest(t *testing.T) {
	ctx := context.Background()
	h := openTestHandle(t)

	uuidResp, err := Dispatch(ctx, h, Request{Operation: OpNewUUID, Params: map[string]string{"job_uuid": "11111111-1111-1111-1111-111111111111"}})
	if err != nil {
		t.Fatalf("Dispatch(OpNewUUID): %v", err)
	}
	entityResp, err := Dispatch(ctx, h, Request{Operation: OpNewEntity, Params: map[string]string{
		"job_uuid":     "11111111-1111-1111-1111-111111111111",
		"archive_type": "NORMAL",
		"created_at":   time.Now().Format(time.RFC3339),
	}})
	if err != nil {
		t.Fatalf("Dispatch(OpNewEntity): %v", err)
	}
	storageResp, err := Dispatch(ctx, h, Request{Operation: OpNewStorage, Params: map[string]string{
		"uuid_id":    uuidResp["uuidId"],
		"entity_id":  entityResp["entityId"],
		"name":       "s1",
		"created_at": time.Now().Format(time.RFC3339),
		"size":       "0",
		"state":      "OK",
		"mode":       "MANUAL",
	}})
	if err != nil {
		t.Fatalf("Dispatch(OpNewStorage): %v", err)
	}

	uuidID, err := parseID(uuidResp["uuidId"], types.TypeUUID)
	if err != nil {
		t.Fatalf("parse uuidId: %v", err)
	}
	entityID, err := parseID(entityResp["entityId"], types.TypeEntity)
	if err != nil {
		t.Fatalf("parse entityId: %v", err)
	}
	storageID, err := parseID(storageResp["storageId"], types.TypeStorage)
	if err != nil {
		t.Fatalf("parse storageId: %v", err)
	}

	now := time.Now()
	if _, err := h.AddFile(ctx, aggregate.New(nil), catalog.AddFileParams{
		StorageID: storageID, EntityID: entityID, UUIDID: uuidID,
		Name: "/a/file.txt", Type: types.EntryFile, Size: 10,
		TimeLastAccess: now, TimeModified: now, TimeLastChanged: now, FragmentSize: 10,
	}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	resp, err := Dispatch(ctx, h, Request{Operation: OpFindNewest, Params: map[string]string{"name": "/a/file.txt"}})
	if err != nil {
		t.Fatalf("Dispatch(OpFindNewest): %v", err)
	}
	if resp["storageId"] != storageResp["storageId"] {
		t.Errorf("Dispatch(OpFindNewest).storageId = %q, want %q", resp["storageId"], storageResp["storageId"])
	}
}

func TestRequestResponseEncodeRoundTrip(t *testing.T) {
	req := Request{Operation: OpFindNewest, Params: map[string]string{"name": "/a"}, RequestID: "r1"}
	data, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if got.Operation != req.Operation || got.Params["name"] != "/a" || got.RequestID != "r1" {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, req)
	}

	resp := OKResponse("r1", map[string]string{"storageId": "STORAGE:1"})
	data, err = resp.Encode()
	if err != nil {
		t.Fatalf("Encode response: %v", err)
	}
	gotResp, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !gotResp.Success || gotResp.Result["storageId"] != "STORAGE:1" {
		t.Errorf("response round-trip mismatch: got %+v", gotResp)
	}
}

func TestDiscoverEndpointMissingSocket(t *testing.T) {
	if _, _, err := DiscoverEndpoint("/nonexistent/socket/path"); err != ErrDaemonUnavailable {
		t.Errorf("DiscoverEndpoint(missing) = %v, want ErrDaemonUnavailable", err)
	}
	if _, _, err := DiscoverEndpoint(""); err != ErrDaemonUnavailable {
		t.Errorf("DiscoverEndpoint(\"\") = %v, want ErrDaemonUnavailable", err)
	}
}
