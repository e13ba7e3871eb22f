// Package graphql exposes the marketplace feed, catalog and purchase
// receipts over a GraphQL query API.
package graphql

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/catalog"
	"github.com/neuron-labs/marketd/feed"
	"github.com/neuron-labs/marketd/marketplace"
	"github.com/neuron-labs/marketd/storage"
)

// Schema wraps the built GraphQL schema and its data sources
type Schema struct {
	schema     graphql.Schema
	aggregator *feed.Aggregator
	catalog    catalog.Store
	receipts   storage.ReceiptStore
	logger     *zap.Logger
}

// NewSchema builds the query schema
func NewSchema(aggregator *feed.Aggregator, cat catalog.Store, receipts storage.ReceiptStore, logger *zap.Logger) (*Schema, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Schema{
		aggregator: aggregator,
		catalog:    cat,
		receipts:   receipts,
		logger:     logger,
	}

	listingType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Listing",
		Fields: graphql.Fields{
			"tokenId": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return int(p.Source.(marketplace.Listing).TokenID), nil
				},
			},
			"creator": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(marketplace.Listing).Creator.Hex(), nil
				},
			},
			"tags": &graphql.Field{
				Type: graphql.NewList(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(marketplace.Listing).Tags, nil
				},
			},
			"creatorShort": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return marketplace.TruncateAddress(p.Source.(marketplace.Listing).Creator), nil
				},
			},
			"usageFee": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(marketplace.Listing).UsageFee.String(), nil
				},
			},
			"usageFeeEther": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return marketplace.FormatEther(p.Source.(marketplace.Listing).UsageFee), nil
				},
			},
			"uri": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(marketplace.Listing).URI, nil
				},
			},
		},
	})

	functionRefType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FunctionRef",
		Fields: graphql.Fields{
			"name":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"signature":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"description": &graphql.Field{Type: graphql.String},
		},
	})

	contentBlockType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ContentBlock",
		Fields: graphql.Fields{
			"tag":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"content": &graphql.Field{Type: graphql.String},
		},
	})

	resourceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Resource",
		Fields: graphql.Fields{
			"title": &graphql.Field{Type: graphql.String},
			"url":   &graphql.Field{Type: graphql.String},
		},
	})

	contractType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CatalogContract",
		Fields: graphql.Fields{
			"author":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"slug":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"version":     &graphql.Field{Type: graphql.String},
			"name":        &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
			"path":        &graphql.Field{Type: graphql.String},
			"content": &graphql.Field{
				Type: graphql.NewList(contentBlockType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(catalog.Record).Content, nil
				},
			},
			"writeFunctions": &graphql.Field{
				Type: graphql.NewList(functionRefType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(catalog.Record).WriteFunctions, nil
				},
			},
			"readFunctions": &graphql.Field{
				Type: graphql.NewList(functionRefType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(catalog.Record).ReadFunctions, nil
				},
			},
			"resources": &graphql.Field{
				Type: graphql.NewList(resourceType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(catalog.Record).Resources, nil
				},
			},
		},
	})

	receiptType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PurchaseReceipt",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"tokenId":     &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"txHash":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"metadataUri": &graphql.Field{Type: graphql.String},
			"usageFee":    &graphql.Field{Type: graphql.String},
			"status":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"filePath":    &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"listings": &graphql.Field{
				Type:        graphql.NewList(listingType),
				Description: "Marketplace listings, optionally filtered by tag query",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: s.resolveListings,
			},
			"listing": &graphql.Field{
				Type:        listingType,
				Description: "A single listing by token ID",
				Args: graphql.FieldConfigArgument{
					"tokenId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: s.resolveListing,
			},
			"contract": &graphql.Field{
				Type:        contractType,
				Description: "A catalog contract by author/slug identifier",
				Args: graphql.FieldConfigArgument{
					"identifier": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: s.resolveContract,
			},
			"receipts": &graphql.Field{
				Type:        graphql.NewList(receiptType),
				Description: "All purchase receipts, newest first",
				Resolve:     s.resolveReceipts,
			},
			"pendingReceipts": &graphql.Field{
				Type:        graphql.NewList(receiptType),
				Description: "Paid purchases still awaiting download",
				Resolve:     s.resolvePendingReceipts,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	if err != nil {
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}

	s.schema = schema
	return s, nil
}

func (s *Schema) resolveListings(p graphql.ResolveParams) (interface{}, error) {
	query, _ := p.Args["query"].(string)
	return s.aggregator.Search(p.Context, query)
}

func (s *Schema) resolveListing(p graphql.ResolveParams) (interface{}, error) {
	tokenID, ok := p.Args["tokenId"].(int)
	if !ok || tokenID < 1 {
		return nil, fmt.Errorf("tokenId must be a positive integer")
	}
	return s.aggregator.Listing(p.Context, uint64(tokenID))
}

func (s *Schema) resolveContract(p graphql.ResolveParams) (interface{}, error) {
	identifier, _ := p.Args["identifier"].(string)
	return s.catalog.Lookup(identifier)
}

func (s *Schema) resolveReceipts(p graphql.ResolveParams) (interface{}, error) {
	return s.receipts.ListReceipts(p.Context)
}

func (s *Schema) resolvePendingReceipts(p graphql.ResolveParams) (interface{}, error) {
	return s.receipts.PendingReceipts(p.Context)
}
