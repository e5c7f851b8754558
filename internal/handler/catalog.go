package handler

import (
	"go.uber.org/zap"

	"github.com/iliyamo/showbook/internal/inventory"
	"github.com/iliyamo/showbook/internal/repository"
)

// CatalogHandler serves venue, show, availability and search endpoints.
type CatalogHandler struct {
	Store  *repository.Store
	Ledger *inventory.Ledger
	Log    *zap.Logger
}

func NewCatalogHandler(store *repository.Store, ledger *inventory.Ledger, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{Store: store, Ledger: ledger, Log: log}
}
