package main

import (
	"os"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"credregistry/internal/platform/logger"
	"credregistry/internal/registry/chaincode"
)

func main() {
	log := logger.NewWithWriter(os.Stderr, os.Getenv("LOG_LEVEL"))

	contract := chaincode.NewRegistryContract(log, os.Getenv("REGISTRY_OWNER_ORGANIZATION"))
	cc, err := contractapi.NewChaincode(contract)
	if err != nil {
		log.Error("failed to create registry chaincode", "error", err)
		os.Exit(1)
	}
	cc.Info.Title = "credential-registry"
	cc.Info.Version = "1.0.0"

	if err := cc.Start(); err != nil {
		log.Error("failed to start registry chaincode", "error", err)
		os.Exit(1)
	}
}
