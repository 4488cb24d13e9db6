// Package chaincode exposes the registry as a Fabric contract. Each invocation builds
// a registry service over the ledger store bound to that transaction; the caller
// address is derived from the submitting client's identity.
package chaincode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"credregistry/internal/registry/ledger"
	"credregistry/internal/registry/models"
	"credregistry/internal/registry/service"
	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/requestcontext"
)

const contractName = "registry"

// RegistryContract provides the registry transactions.
type RegistryContract struct {
	contractapi.Contract
	logger            *slog.Logger
	ownerOrganization string
}

func NewRegistryContract(logger *slog.Logger, ownerOrganization string) *RegistryContract {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RegistryContract{logger: logger, ownerOrganization: ownerOrganization}
	c.Name = contractName
	return c
}

// invocation is the per-transaction view of the registry.
type invocation struct {
	ctx      context.Context
	caller   id.Address
	registry *service.Service
}

func (c *RegistryContract) begin(tctx contractapi.TransactionContextInterface) (*invocation, error) {
	stub := tctx.GetStub()
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return nil, fmt.Errorf("read transaction timestamp: %w", err)
	}
	ctx := requestcontext.WithTime(context.Background(), ts.AsTime().UTC())
	ctx = requestcontext.WithRequestID(ctx, stub.GetTxID())

	st := ledger.New(stub)
	inv := &invocation{
		ctx: ctx,
		registry: service.New(st,
			service.WithTx(ledger.NewTx(st)),
			service.WithLogger(c.logger),
			service.WithOwnerOrganization(c.ownerOrganization),
		),
	}
	if ci := tctx.GetClientIdentity(); ci != nil {
		clientID, err := ci.GetID()
		if err != nil {
			return nil, fmt.Errorf("read client identity: %w", err)
		}
		inv.caller = id.AddressFromIdentity(clientID)
	}
	return inv, nil
}

// InitLedger makes the submitting client the registry owner and an authorized
// issuer. It is safe to call again by the same client.
func (c *RegistryContract) InitLedger(tctx contractapi.TransactionContextInterface) error {
	inv, err := c.begin(tctx)
	if err != nil {
		return err
	}
	if inv.caller.IsNil() {
		return toChaincodeError(dErrors.New(dErrors.CodeUnauthorized, "caller identity required"))
	}
	return toChaincodeError(inv.registry.Bootstrap(inv.ctx, inv.caller))
}

// CallerAddress returns the registry address derived from the submitting client,
// so clients can learn which address to have authorized.
func (c *RegistryContract) CallerAddress(tctx contractapi.TransactionContextInterface) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	return inv.caller.String(), nil
}

func (c *RegistryContract) Owner(tctx contractapi.TransactionContextInterface) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	owner, err := inv.registry.Owner(inv.ctx)
	if err != nil {
		return "", toChaincodeError(err)
	}
	return owner.String(), nil
}

func (c *RegistryContract) AuthorizeIssuer(tctx contractapi.TransactionContextInterface, address, organization string) error {
	inv, err := c.begin(tctx)
	if err != nil {
		return err
	}
	issuer, err := id.ParseAddress(address)
	if err != nil {
		return toChaincodeError(err)
	}
	return toChaincodeError(inv.registry.AuthorizeIssuer(inv.ctx, inv.caller, issuer, organization))
}

func (c *RegistryContract) RevokeIssuer(tctx contractapi.TransactionContextInterface, address string) error {
	inv, err := c.begin(tctx)
	if err != nil {
		return err
	}
	issuer, err := id.ParseAddress(address)
	if err != nil {
		return toChaincodeError(err)
	}
	return toChaincodeError(inv.registry.RevokeIssuer(inv.ctx, inv.caller, issuer))
}

func (c *RegistryContract) IsAuthorizedIssuer(tctx contractapi.TransactionContextInterface, address string) (bool, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return false, err
	}
	issuer, err := id.ParseAddress(address)
	if err != nil {
		return false, toChaincodeError(err)
	}
	ok, err := inv.registry.IsAuthorizedIssuer(inv.ctx, issuer)
	return ok, toChaincodeError(err)
}

func (c *RegistryContract) GetIssuerOrganization(tctx contractapi.TransactionContextInterface, address string) (string, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return "", err
	}
	issuer, err := id.ParseAddress(address)
	if err != nil {
		return "", toChaincodeError(err)
	}
	org, err := inv.registry.GetIssuerOrganization(inv.ctx, issuer)
	return org, toChaincodeError(err)
}

// IssueCredential records a credential issued by the caller. Hashes are 0x hex,
// expiresAt is unix seconds with 0 meaning never.
func (c *RegistryContract) IssueCredential(
	tctx contractapi.TransactionContextInterface,
	credentialHash, metadataHash, owner string,
	expiresAt int64,
	verificationCode string,
) (uint64, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return 0, err
	}
	req := &models.IssueCredentialRequest{
		CredentialHash:   credentialHash,
		MetadataHash:     metadataHash,
		Owner:            owner,
		ExpiresAt:        expiresAt,
		VerificationCode: verificationCode,
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return 0, toChaincodeError(err)
	}
	cmd, err := req.ToCommand()
	if err != nil {
		return 0, toChaincodeError(err)
	}
	credentialID, err := inv.registry.IssueCredential(inv.ctx, inv.caller, cmd)
	if err != nil {
		return 0, toChaincodeError(err)
	}
	return uint64(credentialID), nil
}

func (c *RegistryContract) GetCredential(tctx contractapi.TransactionContextInterface, credentialID uint64) (*CredentialRecord, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return nil, err
	}
	credential, err := inv.registry.GetCredential(inv.ctx, id.CredentialID(credentialID))
	if err != nil {
		return nil, toChaincodeError(err)
	}
	return toCredentialRecord(credential), nil
}

// VerifyCredential never fails for an unknown code; it returns credential_id 0.
func (c *RegistryContract) VerifyCredential(tctx contractapi.TransactionContextInterface, verificationCode string) (*VerificationRecord, error) {
	inv, err := c.begin(tctx)
	if err != nil {
		return nil, err
	}
	result, err := inv.registry.VerifyCredential(inv.ctx, verificationCode)
	if err != nil {
		return nil, toChaincodeError(err)
	}
	return toVerificationRecord(result), nil
}

func (c *RegistryContract) RevokeCredential(tctx contractapi.TransactionContextInterface, credentialID uint64) error {
	inv, err := c.begin(tctx)
	if err != nil {
		return err
	}
	return toChaincodeError(inv.registry.RevokeCredential(inv.ctx, inv.caller, id.CredentialID(credentialID)))
}

// toChaincodeError prefixes the domain code so clients can branch on it; the
// peer only forwards the message text.
func toChaincodeError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return fmt.Errorf("%s: %w", domainErr.Code, err)
	}
	return err
}
