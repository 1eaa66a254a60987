// Package seed imports companies, suppression entries and reference
// knowledge from a YAML or JSON document.
//
//	companies:
//	  - id: acme
//	    name: Acme
//	    domain: acme.com
//	    industry: SaaS
//	    size: 250
//	    pains: [customer retention]
//	suppressions:
//	  - type: domain
//	    value: initech.com
//	knowledge:
//	  - id: churn
//	    text: SaaS churn benchmark is 5% monthly
//	    fact_key: benchmark.churn
package seed
