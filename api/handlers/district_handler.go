package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
	"github.com/dallasmenard-github/NiagaraGetData/internal/infrastructure"
)

// DistrictHandler serves the configured district inventory
type DistrictHandler struct {
	districts map[string]domain.District
}

// NewDistrictHandler creates a new district handler
func NewDistrictHandler(districts map[string]domain.District) *DistrictHandler {
	return &DistrictHandler{districts: districts}
}

// districtInfo is the API projection of one district record. Credentials
// themselves are never exposed, only whether they are configured.
type districtInfo struct {
	Name           string `json:"name"`
	BaseAddress    string `json:"base_address"`
	HasCredentials bool   `json:"has_credentials"`
	VPN            string `json:"vpn,omitempty"`
}

// ListDistricts handles GET /api/v1/districts
func (h *DistrictHandler) ListDistricts(c *gin.Context) {
	infos := make([]districtInfo, 0, len(h.districts))
	for name, district := range h.districts {
		name = strings.ToUpper(name)
		infos = append(infos, districtInfo{
			Name:           name,
			BaseAddress:    district.BaseAddress,
			HasCredentials: infrastructure.DistrictCredentials(name).IsSet(),
			VPN:            district.VPN,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	c.JSON(http.StatusOK, infos)
}
