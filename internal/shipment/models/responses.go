package models

// ProductDetailsResponse is returned by GET /shipments/{id}/product.
type ProductDetailsResponse struct {
	ID             string `json:"id"`
	ProductDetails string `json:"product_details"`
}

// HistoryCountResponse is returned by GET /shipments/{id}/readings/count.
type HistoryCountResponse struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// HistoryEntryResponse is one reading with its position in the log.
type HistoryEntryResponse struct {
	Index int `json:"index"`
	Reading
}

// HistoryPageResponse is returned by GET /shipments/{id}/readings.
type HistoryPageResponse struct {
	ID      string                 `json:"id"`
	Offset  int                    `json:"offset"`
	Count   int                    `json:"count"`
	Entries []HistoryEntryResponse `json:"entries"`
}

// NewHistoryPage numbers a page of readings starting at offset.
func NewHistoryPage(id string, offset, total int, readings []Reading) HistoryPageResponse {
	entries := make([]HistoryEntryResponse, len(readings))
	for i, r := range readings {
		entries[i] = HistoryEntryResponse{Index: offset + i, Reading: r}
	}
	return HistoryPageResponse{ID: id, Offset: offset, Count: total, Entries: entries}
}
