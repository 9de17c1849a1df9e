package model

// Pagination is the paging block of a patients response.
type Pagination struct {
	Page    int  `json:"page"`
	HasNext bool `json:"hasNext"`
}

// Page is a schema-valid patients response.
type Page struct {
	Records    []PatientRecord `json:"data"`
	Pagination Pagination      `json:"pagination"`
}
