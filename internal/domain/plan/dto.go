// internal/domain/plan/dto.go
package plan

type CreatePackageRequest struct {
	Name                 string       `json:"name" binding:"required,max=255"`
	Description          string       `json:"description"`
	Price                float64      `json:"price" binding:"min=0"`
	Currency             string       `json:"currency" binding:"required,len=3"`
	Duration             int          `json:"duration" binding:"required,min=1"`
	DurationUnit         DurationUnit `json:"durationUnit" binding:"required"`
	Tier                 Tier         `json:"tier"`
	Ceilings             Ceilings     `json:"ceilings"`
	IsFree               bool         `json:"isFree"`
	IsPopular            bool         `json:"isPopular"`
	IsActive             *bool        `json:"isActive"`
	MaxFreeTrialDuration *int         `json:"maxFreeTrialDuration"`
	Discount             *Discount    `json:"discount"`
}

type PackageListFilters struct {
	ActiveOnly bool `form:"activeOnly"`
}
