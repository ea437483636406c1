package main

import (
	"os"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("chaincode", "cashflow").Logger()

	chaincode, err := contractapi.NewChaincode(&CashflowContract{})
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating cashflow chaincode")
	}
	chaincode.Info.Title = "cashflow"
	chaincode.Info.Version = "1.0.0"

	if err := chaincode.Start(); err != nil {
		log.Fatal().Err(err).Msg("Error starting cashflow chaincode")
	}
}
