package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/opensearch-project/opensearch-go/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"dbmonitorapi/pkg/apperrors"
)

// mongoAdapter is probe-only: the monitor checks reachability, but no
// introspection or query execution is offered for document stores.
type mongoAdapter struct {
	client *mongo.Client
}

func newMongoAdapter(fields map[string]string, extra map[string]interface{}) (*mongoAdapter, error) {
	host := fieldOr(fields, "host", "localhost")
	port := fieldOr(fields, "port", "27017")

	u := &url.URL{
		Scheme: "mongodb",
		Host:   fmt.Sprintf("%s:%s", host, port),
	}
	if user := fields["username"]; user != "" {
		u.User = url.UserPassword(user, fields["password"])
	}
	if database := fields["database"]; database != "" {
		u.Path = "/" + database
	}
	u.RawQuery = extraQuery(extra).Encode()

	opts := options.Client().
		ApplyURI(u.String()).
		SetServerSelectionTimeout(5 * time.Second)
	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "open mongodb connection", err)
	}
	return &mongoAdapter{client: client}, nil
}

func (a *mongoAdapter) Probe(ctx context.Context) Status {
	st := Status{LastCheck: time.Now()}
	if err := a.client.Ping(ctx, readpref.Primary()); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Connected = true
	return st
}

func (a *mongoAdapter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.client.Disconnect(ctx)
}

// openSearchAdapter is probe-only, see mongoAdapter.
type openSearchAdapter struct {
	client *opensearch.Client
}

func newOpenSearchAdapter(fields map[string]string, extra map[string]interface{}) (*openSearchAdapter, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{searchAddress(fields, extra)},
		Username:  fields["username"],
		Password:  fields["password"],
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "open opensearch connection", err)
	}
	return &openSearchAdapter{client: client}, nil
}

func (a *openSearchAdapter) Probe(ctx context.Context) Status {
	st := Status{LastCheck: time.Now()}
	res, err := a.client.Ping(a.client.Ping.WithContext(ctx))
	if err != nil {
		st.Error = err.Error()
		return st
	}
	defer res.Body.Close()
	if res.IsError() {
		st.Error = res.Status()
		return st
	}
	st.Connected = true
	return st
}

func (a *openSearchAdapter) Close() error { return nil }

// elasticsearchAdapter is probe-only, see mongoAdapter.
type elasticsearchAdapter struct {
	client *elasticsearch.Client
}

func newElasticsearchAdapter(fields map[string]string, extra map[string]interface{}) (*elasticsearchAdapter, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{searchAddress(fields, extra)},
		Username:  fields["username"],
		Password:  fields["password"],
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "open elasticsearch connection", err)
	}
	return &elasticsearchAdapter{client: client}, nil
}

func (a *elasticsearchAdapter) Probe(ctx context.Context) Status {
	st := Status{LastCheck: time.Now()}
	res, err := a.client.Ping(a.client.Ping.WithContext(ctx))
	if err != nil {
		st.Error = err.Error()
		return st
	}
	defer res.Body.Close()
	if res.IsError() {
		st.Error = res.Status()
		return st
	}
	st.Connected = true
	return st
}

func (a *elasticsearchAdapter) Close() error { return nil }

// searchAddress builds the node URL for the search-engine clients. The
// "use_ssl" extra option switches the scheme to https.
func searchAddress(fields map[string]string, extra map[string]interface{}) string {
	scheme := "http"
	if v, ok := extra["use_ssl"].(bool); ok && v {
		scheme = "https"
	}
	host := fieldOr(fields, "host", "localhost")
	port := fieldOr(fields, "port", "9200")
	return fmt.Sprintf("%s://%s:%s", scheme, host, port)
}
