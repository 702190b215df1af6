// Package policy provides domain vocabulary predicates for insurance policy
// document processing.
//
// The vocabulary covers the entities the pipeline canonicalises out of policy
// documents (policies, coverages, exclusions, endorsements, locations,
// vehicles, drivers, claims) and the relationships between them. It is
// designed for:
//   - Internal efficiency: clean dotted notation for NATS wildcard queries
//   - External interoperability: IRI mappings for RDF export
//
// # Semstreams Integration
//
// This package follows semstreams vocabulary patterns:
//   - Predicates use three-level dotted notation (domain.category.property)
//   - Predicates are registered in init() using vocabulary.Register()
//   - IRI mappings use vocabulary.WithIRI() for RDF export compatibility
//
// # Usage
//
// Import the package to register predicates, then use predicate constants:
//
//	import (
//	    "github.com/c360studio/policypipe/vocabulary/policy"
//	    "github.com/c360studio/semstreams/message"
//	)
//
//	func buildTriples(canonicalID string) []message.Triple {
//	    return []message.Triple{
//	        {Subject: canonicalID, Predicate: policy.EntityName, Object: "Acme Logistics LLC"},
//	        {Subject: canonicalID, Predicate: policy.PolicyNumber, Object: "BP-4429871"},
//	    }
//	}
package policy
