package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/products", r.URL.Path)
		require.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"items":[{"id":"P1","name":"Red Apple","sku":"A1","price":10}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	products, err := client.FetchProducts(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "P1", products[0].ID)
	require.Equal(t, "Red Apple", products[0].Name)
}

func TestFetchProductsSkipsInvalidRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"P1","name":"Red Apple"},{"id":"","name":"No ID"},{"id":"P2","name":""}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	products, err := client.FetchProducts(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "P1", products[0].ID)
}

func TestFetchCustomers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/customers", r.URL.Path)
		_, _ = w.Write([]byte(`{"customers":[{"contact_id":"C1","name":"Acme"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	customers, err := client.FetchCustomers(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.Equal(t, "C1", customers[0].ContactID)
}

func TestFetchLastSoldPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/last-sold-prices/lookup", r.URL.Path)

		var req lastSoldPricesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"P1", "P2"}, req.ProductIDs)
		require.Equal(t, "BR-1", req.BranchID)

		_, _ = w.Write([]byte(`{"success":true,"prices":[{"product_id":"P1","branch_id":"BR-1","unit":"PCS","price":8.5}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	prices, err := client.FetchLastSoldPrices(context.Background(), []string{"P1", "P2"}, "BR-1")
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.Equal(t, 8.5, prices[0].Price)
}

func TestFetchLastSoldPricesRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.FetchLastSoldPrices(context.Background(), []string{"P1"}, "BR-1")
	require.Error(t, err)
}

func TestCreateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/invoices", r.URL.Path)

		var req CreateInvoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "CUST-1", req.CustomerID)
		require.Len(t, req.LineItems, 1)

		_, _ = w.Write([]byte(`{"success":true,"invoice":{"invoice_id":"INV-1","invoice_number":"0001","total":115,"status":"draft"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	invoice, err := client.CreateInvoice(context.Background(), CreateInvoiceRequest{
		CustomerID: "CUST-1",
		LineItems:  []InvoiceLineItem{{ItemID: "P1", Rate: 100, Quantity: 1, ItemTotal: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-1", invoice.InvoiceID)
	require.Equal(t, 115.0, invoice.Total)
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.FetchProducts(context.Background(), 10)
	require.ErrorContains(t, err, "status 502")

	err = client.Ping(context.Background())
	require.Error(t, err)
}
