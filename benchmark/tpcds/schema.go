package tpcds

import (
	"strings"
)

type Column struct {
	Name string
	Type string
}

type Table struct {
	Name    string
	Columns []Column
}

// Schema renders "col TYPE" pairs joined by sep.
func (t Table) Schema(sep string) string {
	parts := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		parts[i] = c.Name + " " + c.Type
	}
	return strings.Join(parts, sep)
}

func cols(typ string, names ...string) []Column {
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = Column{Name: n, Type: typ}
	}
	return out
}

func concat(groups ...[]Column) []Column {
	var out []Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// The tables Query 99 reads, in load order.
var Tables = []Table{
	{
		Name: "catalog_sales",
		Columns: concat(
			cols("INT",
				"cs_sold_date_sk", "cs_sold_time_sk", "cs_ship_date_sk", "cs_bill_customer_sk",
				"cs_bill_cdemo_sk", "cs_bill_hdemo_sk", "cs_bill_addr_sk", "cs_ship_customer_sk",
				"cs_ship_cdemo_sk", "cs_ship_hdemo_sk", "cs_ship_addr_sk", "cs_call_center_sk",
				"cs_catalog_page_sk", "cs_ship_mode_sk", "cs_warehouse_sk", "cs_item_sk",
				"cs_promo_sk", "cs_order_number", "cs_quantity"),
			cols("DECIMAL(7,2)",
				"cs_wholesale_cost", "cs_list_price", "cs_sales_price", "cs_ext_discount_amt",
				"cs_ext_sales_price", "cs_ext_wholesale_cost", "cs_ext_list_price", "cs_ext_tax",
				"cs_coupon_amt", "cs_ext_ship_cost", "cs_net_paid", "cs_net_paid_inc_tax",
				"cs_net_paid_inc_ship", "cs_net_paid_inc_ship_tax", "cs_net_profit"),
		),
	},
	{
		Name: "warehouse",
		Columns: concat(
			cols("INT", "w_warehouse_sk"),
			cols("STRING", "w_warehouse_id", "w_warehouse_name"),
			cols("INT", "w_warehouse_sq_ft"),
			cols("STRING",
				"w_street_number", "w_street_name", "w_street_type", "w_suite_number",
				"w_city", "w_county", "w_state", "w_zip", "w_country"),
			cols("DECIMAL(5,2)", "w_gmt_offset"),
		),
	},
	{
		Name: "ship_mode",
		Columns: concat(
			cols("INT", "sm_ship_mode_sk"),
			cols("STRING", "sm_ship_mode_id", "sm_type", "sm_code", "sm_carrier", "sm_contract"),
		),
	},
	{
		Name: "call_center",
		Columns: concat(
			cols("INT", "cc_call_center_sk"),
			cols("STRING", "cc_call_center_id"),
			cols("DATE", "cc_rec_start_date", "cc_rec_end_date"),
			cols("INT", "cc_closed_date_sk", "cc_open_date_sk"),
			cols("STRING", "cc_name", "cc_class"),
			cols("INT", "cc_employees", "cc_sq_ft"),
			cols("STRING", "cc_hours", "cc_manager"),
			cols("INT", "cc_mkt_id"),
			cols("STRING", "cc_mkt_class", "cc_mkt_desc", "cc_market_manager"),
			cols("INT", "cc_division"),
			cols("STRING", "cc_division_name"),
			cols("INT", "cc_company"),
			cols("STRING",
				"cc_company_name", "cc_street_number", "cc_street_name", "cc_street_type",
				"cc_suite_number", "cc_city", "cc_county", "cc_state", "cc_zip", "cc_country"),
			cols("DECIMAL(5,2)", "cc_gmt_offset", "cc_tax_percentage"),
		),
	},
	{
		Name: "date_dim",
		Columns: concat(
			cols("INT", "d_date_sk"),
			cols("STRING", "d_date_id"),
			cols("DATE", "d_date"),
			cols("INT",
				"d_month_seq", "d_week_seq", "d_quarter_seq", "d_year", "d_dow", "d_moy",
				"d_dom", "d_qoy", "d_fy_year", "d_fy_quarter_seq", "d_fy_week_seq"),
			cols("STRING", "d_day_name", "d_quarter_name", "d_holiday", "d_weekend", "d_following_holiday"),
			cols("INT", "d_first_dom", "d_last_dom", "d_same_day_ly", "d_same_day_lq"),
			cols("STRING", "d_current_day", "d_current_week", "d_current_month", "d_current_quarter", "d_current_year"),
		),
	},
}

func TableNames() []string {
	out := make([]string, len(Tables))
	for i, t := range Tables {
		out[i] = t.Name
	}
	return out
}
