package domain

import "time"

type Product struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Barcode    string `json:"barcode,omitempty"`
	PriceCents int64  `json:"priceCents"`
	Category   string `json:"category"`
	Brand      string `json:"brand,omitempty"`
	Stock      int    `json:"stock"`
	Active     bool   `json:"active"`
}

type ProductCreateRequest struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Barcode    string `json:"barcode,omitempty"`
	PriceCents int64  `json:"priceCents"`
	Category   string `json:"category"`
	Brand      string `json:"brand,omitempty"`
	Stock      int    `json:"stock"`
}

type BarcodeRequest struct {
	Text      string `json:"text"`
	Symbology string `json:"symbology"`
}

type BarcodePreviewRequest struct {
	Text      string `json:"text"`
	Symbology string `json:"symbology"`
	WidthPx   int    `json:"widthPx,omitempty"`
	HeightPx  int    `json:"heightPx,omitempty"`
}

type BarcodePreviewResponse struct {
	Payload     string `json:"payload"`
	DisplayText string `json:"displayText"`
	ContentType string `json:"contentType"`
	ImageBase64 string `json:"imageBase64"`
}

type ProductRef struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity,omitempty"`
}

type PageSpec struct {
	WidthMm  float64 `json:"widthMm"`
	HeightMm float64 `json:"heightMm"`
	MarginMm float64 `json:"marginMm"`
}

// PrintJobRequest selects either products or a custom text. Quantity applies to
// every product unless the product reference carries its own quantity.
type PrintJobRequest struct {
	TemplateID string       `json:"templateId"`
	Symbology  string       `json:"symbology,omitempty"`
	Products   []ProductRef `json:"products,omitempty"`
	CustomText string       `json:"customText,omitempty"`
	Quantity   int          `json:"quantity,omitempty"`
	Page       *PageSpec    `json:"page,omitempty"`
}

type ItemError struct {
	InstanceIndex int       `json:"instanceIndex"`
	Kind          ErrorKind `json:"kind"`
	Message       string    `json:"message"`
}

type JobReport struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Errors    []ItemError `json:"errors"`
}

// Record appends an item error and bumps the matching counter.
func (r *JobReport) Record(index int, err error) {
	kind := KindOf(err)
	if kind == KindNotFound {
		r.Skipped++
	} else {
		r.Failed++
	}
	r.Errors = append(r.Errors, ItemError{InstanceIndex: index, Kind: kind, Message: err.Error()})
}

type PrintJobRecord struct {
	ID          string    `json:"id"`
	TemplateID  string    `json:"templateId"`
	RequestedBy string    `json:"requestedBy"`
	Pages       int       `json:"pages"`
	Report      JobReport `json:"report"`
	CreatedAt   time.Time `json:"createdAt"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProductDraft is one row produced by the external extraction step of a bulk import.
type ProductDraft struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Barcode    string `json:"barcode,omitempty"`
	PriceCents int64  `json:"priceCents"`
	Category   string `json:"category"`
	Brand      string `json:"brand,omitempty"`
	Stock      int    `json:"stock"`
}

type ImportEventRequest struct {
	Type     string         `json:"type"`
	FileName string         `json:"fileName,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Index    int            `json:"index,omitempty"`
	Draft    *ProductDraft  `json:"draft,omitempty"`
	Drafts   []ProductDraft `json:"drafts,omitempty"`
}

type ImportSessionResponse struct {
	ID        string         `json:"id"`
	Step      string         `json:"step"`
	FileName  string         `json:"fileName,omitempty"`
	Drafts    []ProductDraft `json:"drafts,omitempty"`
	Created   int            `json:"created,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
