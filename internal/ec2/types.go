package ec2

import (
	"encoding/xml"
	"fmt"
)

// describeSpotPriceHistoryResponse is the Query API response envelope.
type describeSpotPriceHistoryResponse struct {
	XMLName   xml.Name        `xml:"DescribeSpotPriceHistoryResponse"`
	RequestID string          `xml:"requestId"`
	Items     []spotPriceItem `xml:"spotPriceHistorySet>item"`
	NextToken string          `xml:"nextToken"`
}

// spotPriceItem carries one raw spot price record. Timestamp and price stay
// strings; parsing is the ingestion layer's job.
type spotPriceItem struct {
	InstanceType       string `xml:"instanceType"`
	ProductDescription string `xml:"productDescription"`
	SpotPrice          string `xml:"spotPrice"`
	Timestamp          string `xml:"timestamp"`
	AvailabilityZone   string `xml:"availabilityZone"`
}

// errorResponse is the Query API error envelope.
type errorResponse struct {
	XMLName   xml.Name   `xml:"Response"`
	Errors    []apiError `xml:"Errors>Error"`
	RequestID string     `xml:"RequestID"`
}

// apiError is a single error from the Query API.
type apiError struct {
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("EC2 API error %s: %s", e.Code, e.Message)
}
