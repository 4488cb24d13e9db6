// Package ledger stores the registry in Fabric world state so the registry can run
// as chaincode. Records are JSON values under composite keys.
//
// Fabric reads do not observe writes made earlier in the same transaction; every
// method reads the state as of the start of the invocation. The registry service
// never reads a key after writing it within one operation.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/fabric-chaincode-go/shim"

	"credregistry/internal/registry/models"
	"credregistry/internal/registry/store"
	"credregistry/internal/sentinel"
	id "credregistry/pkg/domain"
)

const (
	ownerKey   = "registry~owner"
	counterKey = "registry~credential_counter"

	issuerObjectType      = "issuer"
	credentialObjectType  = "credential"
	codeObjectType        = "code"
	ownerIndexObjectType  = "owner~credential"
	issuerIndexObjectType = "issuer~credential"
	eventObjectType       = "event"
)

// eventNamespace derives deterministic event ids from transaction ids so every
// endorsing peer produces the same write set.
var eventNamespace = uuid.MustParse("6f1c9a52-3e0b-4f57-9d55-2b8c1a7e4d10")

// Store implements store.Store over a chaincode stub. It is bound to one
// invocation.
type Store struct {
	stub shim.ChaincodeStubInterface
}

var _ store.Store = (*Store)(nil)

func New(stub shim.ChaincodeStubInterface) *Store {
	return &Store{stub: stub}
}

type ownerRecord struct {
	Owner id.Address `json:"owner"`
	SetAt time.Time  `json:"set_at"`
}

func (s *Store) Owner(_ context.Context) (id.Address, error) {
	var rec ownerRecord
	if err := s.getJSON(ownerKey, &rec); err != nil {
		return "", err
	}
	return rec.Owner, nil
}

func (s *Store) SetOwner(_ context.Context, owner id.Address, at time.Time) error {
	exists, err := s.exists(ownerKey)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("registry owner: %w", sentinel.ErrConflict)
	}
	return s.putJSON(ownerKey, ownerRecord{Owner: owner, SetAt: at})
}

func (s *Store) FindIssuer(_ context.Context, addr id.Address) (*models.Issuer, error) {
	key, err := s.stub.CreateCompositeKey(issuerObjectType, []string{addr.String()})
	if err != nil {
		return nil, fmt.Errorf("issuer key: %w", err)
	}
	var issuer models.Issuer
	if err := s.getJSON(key, &issuer); err != nil {
		return nil, err
	}
	return &issuer, nil
}

func (s *Store) SaveIssuer(_ context.Context, issuer *models.Issuer) error {
	key, err := s.stub.CreateCompositeKey(issuerObjectType, []string{issuer.Address.String()})
	if err != nil {
		return fmt.Errorf("issuer key: %w", err)
	}
	return s.putJSON(key, issuer)
}

func (s *Store) InsertCredential(_ context.Context, credential *models.Credential) (id.CredentialID, error) {
	codeKey, err := s.stub.CreateCompositeKey(codeObjectType, []string{credential.VerificationCode})
	if err != nil {
		return 0, fmt.Errorf("verification code key: %w", err)
	}
	taken, err := s.exists(codeKey)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, fmt.Errorf("verification code %q: %w", credential.VerificationCode, sentinel.ErrConflict)
	}

	last, err := s.counter()
	if err != nil {
		return 0, err
	}
	next := id.CredentialID(last + 1)

	record := credential.Clone()
	record.ID = next
	credentialKey, err := s.credentialKey(next)
	if err != nil {
		return 0, err
	}
	if err := s.putJSON(credentialKey, record); err != nil {
		return 0, err
	}
	if err := s.stub.PutState(codeKey, []byte(next.String())); err != nil {
		return 0, fmt.Errorf("index verification code: %w", err)
	}
	if err := s.putIndex(ownerIndexObjectType, record.Owner, next); err != nil {
		return 0, err
	}
	if err := s.putIndex(issuerIndexObjectType, record.Issuer, next); err != nil {
		return 0, err
	}
	if err := s.stub.PutState(counterKey, []byte(strconv.FormatUint(uint64(next), 10))); err != nil {
		return 0, fmt.Errorf("advance credential counter: %w", err)
	}
	return next, nil
}

func (s *Store) FindCredential(_ context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	key, err := s.credentialKey(credentialID)
	if err != nil {
		return nil, err
	}
	var credential models.Credential
	if err := s.getJSON(key, &credential); err != nil {
		return nil, err
	}
	return &credential, nil
}

func (s *Store) FindCredentialIDByCode(_ context.Context, code string) (id.CredentialID, error) {
	key, err := s.stub.CreateCompositeKey(codeObjectType, []string{code})
	if err != nil {
		return 0, fmt.Errorf("verification code key: %w", err)
	}
	raw, err := s.stub.GetState(key)
	if err != nil {
		return 0, fmt.Errorf("read verification code: %w", err)
	}
	if raw == nil {
		return 0, sentinel.ErrNotFound
	}
	return id.ParseCredentialID(string(raw))
}

func (s *Store) MarkRevoked(ctx context.Context, credentialID id.CredentialID, at time.Time) error {
	credential, err := s.FindCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	if credential.Revoked {
		return nil
	}
	credential.Revoked = true
	credential.RevokedAt = &at
	key, err := s.credentialKey(credentialID)
	if err != nil {
		return err
	}
	return s.putJSON(key, credential)
}

func (s *Store) ListByOwner(ctx context.Context, owner id.Address) ([]*models.Credential, error) {
	return s.listIndex(ctx, ownerIndexObjectType, owner)
}

func (s *Store) ListByIssuer(ctx context.Context, issuer id.Address) ([]*models.Credential, error) {
	return s.listIndex(ctx, issuerIndexObjectType, issuer)
}

// AppendEvent stores credential events under their credential and emits the event
// as the transaction's chaincode event. Fabric keeps one chaincode event per
// transaction, which matches one registry event per operation.
func (s *Store) AppendEvent(_ context.Context, event *models.Event) error {
	event.ID = uuid.NewSHA1(eventNamespace, []byte(s.stub.GetTxID()+"/"+string(event.Type)))
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if !event.CredentialID.IsNil() {
		key, err := s.stub.CreateCompositeKey(eventObjectType, []string{
			padID(event.CredentialID),
			fmt.Sprintf("%020d", event.OccurredAt.UnixNano()),
			event.ID.String(),
		})
		if err != nil {
			return fmt.Errorf("event key: %w", err)
		}
		if err := s.stub.PutState(key, payload); err != nil {
			return fmt.Errorf("store %s event: %w", event.Type, err)
		}
	}
	if err := s.stub.SetEvent(string(event.Type), payload); err != nil {
		return fmt.Errorf("emit %s event: %w", event.Type, err)
	}
	return nil
}

func (s *Store) ListEvents(_ context.Context, credentialID id.CredentialID) ([]*models.Event, error) {
	iter, err := s.stub.GetStateByPartialCompositeKey(eventObjectType, []string{padID(credentialID)})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer iter.Close()

	events := []*models.Event{}
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate events: %w", err)
		}
		var event models.Event
		if err := json.Unmarshal(kv.Value, &event); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", kv.Key, err)
		}
		events = append(events, &event)
	}
	return events, nil
}

func (s *Store) counter() (uint64, error) {
	raw, err := s.stub.GetState(counterKey)
	if err != nil {
		return 0, fmt.Errorf("read credential counter: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt credential counter %q: %w", raw, err)
	}
	return n, nil
}

func (s *Store) credentialKey(credentialID id.CredentialID) (string, error) {
	key, err := s.stub.CreateCompositeKey(credentialObjectType, []string{padID(credentialID)})
	if err != nil {
		return "", fmt.Errorf("credential key: %w", err)
	}
	return key, nil
}

func (s *Store) putIndex(objectType string, addr id.Address, credentialID id.CredentialID) error {
	key, err := s.stub.CreateCompositeKey(objectType, []string{addr.String(), padID(credentialID)})
	if err != nil {
		return fmt.Errorf("%s key: %w", objectType, err)
	}
	// Index entries carry no value; Fabric treats an empty value as a delete.
	if err := s.stub.PutState(key, []byte{0x00}); err != nil {
		return fmt.Errorf("write %s index: %w", objectType, err)
	}
	return nil
}

// listIndex walks an address index. Ids are zero-padded in keys so range order
// is id order.
func (s *Store) listIndex(ctx context.Context, objectType string, addr id.Address) ([]*models.Credential, error) {
	iter, err := s.stub.GetStateByPartialCompositeKey(objectType, []string{addr.String()})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", objectType, err)
	}
	defer iter.Close()

	credentials := []*models.Credential{}
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate %s: %w", objectType, err)
		}
		_, attrs, err := s.stub.SplitCompositeKey(kv.Key)
		if err != nil || len(attrs) != 2 {
			return nil, fmt.Errorf("malformed %s key %q", objectType, kv.Key)
		}
		credentialID, err := id.ParseCredentialID(attrs[1])
		if err != nil {
			return nil, err
		}
		credential, err := s.FindCredential(ctx, credentialID)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func (s *Store) exists(key string) (bool, error) {
	raw, err := s.stub.GetState(key)
	if err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	return raw != nil, nil
}

func (s *Store) getJSON(key string, out any) error {
	raw, err := s.stub.GetState(key)
	if err != nil {
		return fmt.Errorf("read %q: %w", key, err)
	}
	if raw == nil {
		return sentinel.ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

func (s *Store) putJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := s.stub.PutState(key, raw); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

func padID(credentialID id.CredentialID) string {
	return fmt.Sprintf("%020d", uint64(credentialID))
}
