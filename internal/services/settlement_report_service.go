package services

import (
	"encoding/xml"
	"fmt"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/powerchain/backend/internal/models"
	"github.com/shopspring/decimal"
)

const (
	Pacs008MessageType = "pacs.008.001.08"
	Pacs002MessageType = "pacs.002.001.08"
)

type SettlementConfig struct {
	Currency string
	AgentBIC string
	// CreditsPerKWh converts credit base units into whole credits.
	CreditsPerKWh int64
}

// SettlementReportService renders settled trades as ISO 20022 messages for
// off-ledger reconciliation.
type SettlementReportService struct {
	currency      string
	agentBIC      string
	creditsPerKWh int64
}

func NewSettlementReportService(cfg SettlementConfig) *SettlementReportService {
	if cfg.CreditsPerKWh <= 0 {
		cfg.CreditsPerKWh = DefaultCreditsPerKWh
	}
	return &SettlementReportService{
		currency:      cfg.Currency,
		agentBIC:      cfg.AgentBIC,
		creditsPerKWh: cfg.CreditsPerKWh,
	}
}

// BuildTradeSettlement creates a pacs.008 credit transfer from buyer to seller.
func (s *SettlementReportService) BuildTradeSettlement(trade models.Trade) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if trade.ID == 0 {
		return nil, fmt.Errorf("settlement: %w", models.ErrTradeNotFound)
	}

	msgId := uuid.New().String()
	settledAt := trade.SettledAt
	txRef := fmt.Sprintf("TRD-%d", trade.ID)
	endToEnd := fmt.Sprintf("OFR-%d-TRD-%d", trade.OfferID, trade.ID)
	amount := s.amount(trade.TotalCost)

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(settledAt),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(s.currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settledAt),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(txRef)}[0],
					EndToEndId: common.Max35Text(endToEnd),
					TxId:       &[]common.Max35Text{common.Max35Text(txRef)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(s.currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settledAt),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.agentBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(trade.Buyer)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.agentBIC)}[0],
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(trade.Seller)}[0],
				},
			},
		},
	}

	return doc, nil
}

// BuildSettlementStatus creates the pacs.002 status report for a trade.
// Ledger trades settle atomically, so the status is always ACSC.
func (s *SettlementReportService) BuildSettlementStatus(trade models.Trade) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	if trade.ID == 0 {
		return nil, fmt.Errorf("settlement status: %w", models.ErrTradeNotFound)
	}

	txRef := fmt.Sprintf("TRD-%d", trade.ID)
	endToEnd := fmt.Sprintf("OFR-%d-TRD-%d", trade.OfferID, trade.ID)

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(uuid.New().String()),
			CreDtTm: common.ISODateTime(trade.SettledAt),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(txRef)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(endToEnd)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(txRef)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code("ACSC")}[0],
			},
		},
	}

	return doc, nil
}

// ToXML converts an ISO 20022 document to an XML string with header.
func (s *SettlementReportService) ToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

// amount expresses base units as whole credits.
func (s *SettlementReportService) amount(units int64) float64 {
	return decimal.NewFromInt(units).Div(decimal.NewFromInt(s.creditsPerKWh)).InexactFloat64()
}
