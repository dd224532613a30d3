package erp

// ODataListResponse is the envelope Business Central wraps every entity
// list in.
type ODataListResponse[T any] struct {
	Value []T `json:"value"`
}

// JobCard is the Job_List / Job_Card projection used for verification.
// The check-date fields carry Business Central's escaped OData names.
type JobCard struct {
	No              string `json:"No"`
	Description     string `json:"Description"`
	BillToName      string `json:"Bill_to_Name"`
	FirstCheckDate  string `json:"_x0031_st_Check_Date"`
	SecondCheckDate string `json:"_x0032_nd_Check_Date"`
	SecondCheckBy   string `json:"_x0032_nd_Check_By"`
}

// SalesQuote is the Sales_Quote header.
type SalesQuote struct {
	No                 string  `json:"No"`
	SellToCustomerNo   string  `json:"Sell_to_Customer_No"`
	SellToCustomerName string  `json:"Sell_to_Customer_Name"`
	AmountIncludingVAT float64 `json:"Amount_Including_VAT"`
}

// SalesQuoteLine is a Sales_QuoteSalesLines row.
type SalesQuoteLine struct {
	DocumentNo  string  `json:"Document_No"`
	LineNo      int     `json:"Line_No"`
	Description string  `json:"Description"`
	Quantity    float64 `json:"Quantity"`
	UnitPrice   float64 `json:"Unit_Price"`
	LineAmount  float64 `json:"Line_Amount"`
}

// SalesInvoice is the Sales_Invoice header.
type SalesInvoice struct {
	No                 string  `json:"No"`
	SellToCustomerNo   string  `json:"Sell_to_Customer_No"`
	SellToCustomerName string  `json:"Sell_to_Customer_Name"`
	Amount             float64 `json:"Amount"`
}

// SalesInvoiceLine is a Sales_InvoiceSalesLines row. Job_No links the
// line back to the job, which is how invoice lines are fetched during
// reconciliation.
type SalesInvoiceLine struct {
	DocumentNo  string  `json:"Document_No"`
	LineNo      int     `json:"Line_No"`
	Description string  `json:"Description"`
	Quantity    float64 `json:"Quantity"`
	UnitPrice   float64 `json:"Unit_Price"`
	LineAmount  float64 `json:"Line_Amount"`
	JobNo       string  `json:"Job_No"`
}

// JobLedgerEntry is a Job_Ledger_Entries row.
type JobLedgerEntry struct {
	EntryNo       int     `json:"Entry_No"`
	JobNo         string  `json:"Job_No"`
	PostingDate   string  `json:"Posting_Date"`
	DocumentNo    string  `json:"Document_No"`
	Type          string  `json:"Type"`
	No            string  `json:"No"`
	Description   string  `json:"Description"`
	Quantity      float64 `json:"Quantity"`
	UnitCostLCY   float64 `json:"Unit_Cost_LCY"`
	TotalCostLCY  float64 `json:"Total_Cost_LCY"`
	UnitPriceLCY  float64 `json:"Unit_Price_LCY"`
	TotalPriceLCY float64 `json:"Total_Price_LCY"`
}

// AttachmentLinks is a JobAttachmentLinks row: File_Links carries a
// comma-separated list of download URLs.
type AttachmentLinks struct {
	No          string `json:"No"`
	Description string `json:"Description"`
	FileLinks   string `json:"File_Links"`
}

// VerificationData bundles everything reconciliation needs from the ERP.
// Nil header pointers and empty slices mean the fetch failed or found
// nothing; callers degrade those to absence discrepancies.
type VerificationData struct {
	Quote         *SalesQuote
	QuoteLines    []SalesQuoteLine
	Invoice       *SalesInvoice
	InvoiceLines  []SalesInvoiceLine
	LedgerEntries []JobLedgerEntry
}
