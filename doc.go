// Package dfi is a client for the DFI, a platform that indexes and queries
// spatiotemporal data. It contains the types shared by every part of the
// client, and sub-packages talk to each area of the HTTP API.
//
// 1. Query documents
//
//    A QueryDocument names a dataset, a ReturnModel (Count or Records) and any
//    number of filters: entity ids, a Geometry (BBox or Polygon), a TimeRange,
//    an Only filter and FilterFields. Every filter validates itself on the
//    client so that obviously bad queries never reach the API. FilterFields
//    can be checked against the dataset's schema as well, which is fetched
//    with the datasets package.
//
// 2. Connect
//
//    The connect package holds the credentials and base URL, builds the
//    request headers, retries rate limited and unavailable responses, and
//    turns any non-2xx response into a ResponseError. It also reads the
//    Server-Sent Events stream used to return query results.
//
// 3. Services
//
//    query, sql, datasets, ingest, identities, users, info and truncate each
//    wrap one area of the API. The client package puts them all behind a
//    single value.
//
// 4. Tooling
//
//    aws/s3 presigns S3 objects so that they can be ingested as URLs, csv
//    checks CSV files before they are ingested, geohash converts cells to
//    bounding boxes, boltdb caches dataset schemas on disk, and cmd/dfi is a
//    command line interface to all of the above.
//
// Errors returned anywhere in the client wrap one of the Err* sentinels in
// this package and can be tested with errors.Cause.
package dfi
