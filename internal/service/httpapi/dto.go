package httpapi

import (
	"time"

	"github.com/dborovsky/grandnode/internal/domain"
	"github.com/dborovsky/grandnode/internal/service/returns"
)

type attributeJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func attributesFromJSON(attrs []attributeJSON) []domain.AddressAttribute {
	if len(attrs) == 0 {
		return nil
	}
	result := make([]domain.AddressAttribute, 0, len(attrs))
	for _, attr := range attrs {
		result = append(result, domain.AddressAttribute(attr))
	}
	return result
}

func attributesToJSON(attrs []domain.AddressAttribute) []attributeJSON {
	if len(attrs) == 0 {
		return nil
	}
	result := make([]attributeJSON, 0, len(attrs))
	for _, attr := range attrs {
		result = append(result, attributeJSON(attr))
	}
	return result
}

type addressJSON struct {
	ID         string          `json:"id,omitempty"`
	Attributes []attributeJSON `json:"attributes,omitempty"`
	CreatedAt  time.Time       `json:"created_at,omitzero"`
}

func addressToJSON(addr domain.Address) addressJSON {
	return addressJSON{
		ID:         addr.ID,
		Attributes: attributesToJSON(addr.Attributes),
		CreatedAt:  addr.CreatedAt,
	}
}

type returnItemJSON struct {
	OrderItemID     string `json:"order_item_id"`
	Qty             int32  `json:"qty"`
	Reason          string `json:"reason,omitempty"`
	RequestedAction string `json:"requested_action,omitempty"`
}

type returnRequestJSON struct {
	ID            string           `json:"id"`
	ReturnNumber  int64            `json:"return_number"`
	CustomerID    string           `json:"customer_id"`
	OrderID       string           `json:"order_id"`
	Items         []returnItemJSON `json:"items"`
	Comments      string           `json:"comments,omitempty"`
	PickupDate    *time.Time       `json:"pickup_date,omitempty"`
	PickupAddress addressJSON      `json:"pickup_address"`
	Status        string           `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func returnRequestToJSON(rr domain.ReturnRequest) returnRequestJSON {
	items := make([]returnItemJSON, 0, len(rr.Items))
	for _, item := range rr.Items {
		items = append(items, returnItemJSON{
			OrderItemID:     item.OrderItemID,
			Qty:             item.Qty,
			Reason:          item.Reason,
			RequestedAction: item.RequestedAction,
		})
	}
	return returnRequestJSON{
		ID:            rr.ID,
		ReturnNumber:  rr.ReturnNumber,
		CustomerID:    rr.CustomerID,
		OrderID:       rr.OrderID,
		Items:         items,
		Comments:      rr.Comments,
		PickupDate:    rr.PickupDate,
		PickupAddress: addressToJSON(rr.PickupAddress),
		Status:        string(rr.Status),
		CreatedAt:     rr.CreatedAt,
		UpdatedAt:     rr.UpdatedAt,
	}
}

type listReturnsResponse struct {
	Returns []returnRequestJSON `json:"returns"`
}

type returnableOrderJSON struct {
	ID          string          `json:"id"`
	Currency    string          `json:"currency"`
	AmountMinor int64           `json:"amount_minor"`
	CompletedAt time.Time       `json:"completed_at"`
	Items       []orderItemJSON `json:"items"`
}

type returnableOrdersResponse struct {
	Orders []returnableOrderJSON `json:"orders"`
}

func returnableOrderToJSON(order domain.Order) returnableOrderJSON {
	items := make([]orderItemJSON, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemJSON{
			ID:         item.ID,
			SKU:        item.SKU,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return returnableOrderJSON{
		ID:          order.ID,
		Currency:    order.Currency,
		AmountMinor: order.AmountMinor,
		CompletedAt: order.CompletedAt,
		Items:       items,
	}
}

type timelineEventJSON struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type returnDetailsJSON struct {
	Request  returnRequestJSON   `json:"request"`
	Timeline []timelineEventJSON `json:"timeline"`
}

func detailsToJSON(details returns.ReturnRequestDetails) returnDetailsJSON {
	timeline := make([]timelineEventJSON, 0, len(details.Timeline))
	for _, event := range details.Timeline {
		timeline = append(timeline, timelineEventJSON{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return returnDetailsJSON{
		Request:  returnRequestToJSON(details.Request),
		Timeline: timeline,
	}
}

type orderItemJSON struct {
	ID         string `json:"id"`
	SKU        string `json:"sku"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type returnFormJSON struct {
	OrderID                   string          `json:"order_id"`
	Currency                  string          `json:"currency"`
	ReturnableItems           []orderItemJSON `json:"returnable_items"`
	SavedAddresses            []addressJSON   `json:"saved_addresses"`
	AllowSpecifyPickupAddress bool            `json:"allow_specify_pickup_address"`
	AllowSpecifyPickupDate    bool            `json:"allow_specify_pickup_date"`
	PickupDateRequired        bool            `json:"pickup_date_required"`
}

func formToJSON(form returns.ReturnRequestForm) returnFormJSON {
	items := make([]orderItemJSON, 0, len(form.ReturnableItems))
	for _, item := range form.ReturnableItems {
		items = append(items, orderItemJSON{
			ID:         item.ID,
			SKU:        item.SKU,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	addresses := make([]addressJSON, 0, len(form.SavedAddresses))
	for _, addr := range form.SavedAddresses {
		addresses = append(addresses, addressToJSON(addr))
	}
	return returnFormJSON{
		OrderID:                   form.Order.ID,
		Currency:                  form.Order.Currency,
		ReturnableItems:           items,
		SavedAddresses:            addresses,
		AllowSpecifyPickupAddress: form.AllowSpecifyPickupAddress,
		AllowSpecifyPickupDate:    form.AllowSpecifyPickupDate,
		PickupDateRequired:        form.PickupDateRequired,
	}
}

type giftCardActionResponse struct {
	Applied bool `json:"applied,omitempty"`
	Removed bool `json:"removed,omitempty"`
}
