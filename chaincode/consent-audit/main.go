package main

import (
	"log"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medaid/chaincode/consent-audit/consentaudit"
)

func main() {
	consentAuditChaincode, err := contractapi.NewChaincode(&consentaudit.SmartContract{})
	if err != nil {
		log.Panicf("Error creating ConsentAudit chaincode: %v", err)
	}

	if err := consentAuditChaincode.Start(); err != nil {
		log.Panicf("Error starting ConsentAudit chaincode: %v", err)
	}
}
