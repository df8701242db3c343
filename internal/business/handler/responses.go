package handler

import (
	anchormodels "confirmit/internal/anchor/models"
	"confirmit/internal/business/models"
)

// APIKeyResponse is the only place a raw key is ever returned.
type APIKeyResponse struct {
	APIKey string         `json:"api_key"`
	Key    *models.APIKey `json:"key"`
	Notice string         `json:"notice"`
}

type TrustScoreResponse struct {
	Business *models.Business     `json:"business"`
	Anchor   *anchormodels.Record `json:"anchor"`
}
