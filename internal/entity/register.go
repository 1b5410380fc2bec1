package entity

import "github.com/tabledog/tdog/internal/schema"

// Register builds the representative entity inventory this implementation
// mirrors and adds every table, writer, and foreign-key edge to reg. It is
// called once at startup; callers needing a smaller registry for tests
// build their own schema.Registry and call only the RegisterEntity/
// RegisterEdge calls they need instead of calling Register.
func Register(reg *schema.Registry) {
	product := &Simple{Table: "td_product", ProviderIDColumn: "stripe_id", DataColumn: "data"}
	reg.RegisterEntity(schema.TableDef{Name: "td_product", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "product"}, product)

	coupon := &Simple{Table: "td_coupon", ProviderIDColumn: "stripe_id", DataColumn: "data"}
	reg.RegisterEntity(schema.TableDef{Name: "td_coupon", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "coupon"}, coupon)

	customer := &Simple{Table: "td_customer", ProviderIDColumn: "stripe_id", DataColumn: "data"}
	reg.RegisterEntity(schema.TableDef{Name: "td_customer", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "customer"}, customer)

	price := &Simple{
		Table: "td_price", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{{JSONField: "product", Column: "product_id", ParentTable: "td_product", ParentProviderIDColumn: "stripe_id"}},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_price", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "price"}, price)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_product", OwnerIDColumn: "product_id", ChildTable: "td_price", ChildColumn: "product_id", Relation: schema.ScalarFK, Enforced: false})

	discount := &Simple{
		Table: "td_discount", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{
			{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"},
			{JSONField: "coupon", Column: "coupon_id", ParentTable: "td_coupon", ParentProviderIDColumn: "stripe_id"},
		},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_discount", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "discount"}, discount)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_customer", OwnerIDColumn: "customer_id", ChildTable: "td_discount", ChildColumn: "customer_id", Relation: schema.ScalarFK, Enforced: true})

	subscription := &Simple{
		Table: "td_subscription", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"}},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_subscription", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "subscription"}, subscription)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_customer", OwnerIDColumn: "customer_id", ChildTable: "td_subscription", ChildColumn: "customer_id", Relation: schema.ScalarFK, Enforced: true})

	subscriptionItem := &ChildList{
		Parent:                subscription,
		ArrayPath:             "items.data",
		ChildTable:            "td_subscription_item",
		ChildColumn:           "subscription_id",
		ChildProviderIDColumn: "stripe_id",
		ChildDataColumn:       "data",
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_subscription_item", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "subscription_item"}, subscriptionItem)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_subscription", OwnerIDColumn: "subscription_id", ChildTable: "td_subscription_item", ChildColumn: "subscription_id", Relation: schema.JSONArrayFK, Enforced: true})

	subscriptionSchedule := &Simple{
		Table: "td_subscription_schedule", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{
			{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"},
			{JSONField: "subscription", Column: "subscription_id", ParentTable: "td_subscription", ParentProviderIDColumn: "stripe_id"},
		},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_subscription_schedule", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "subscription_schedule"}, subscriptionSchedule)

	taxID := &ChildList{
		Parent:                customer,
		ArrayPath:             "tax_ids.data",
		ChildTable:            "td_tax_id",
		ChildColumn:           "customer_id",
		ChildProviderIDColumn: "stripe_id",
		ChildDataColumn:       "data",
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_tax_id", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "tax_id"}, taxID)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_customer", OwnerIDColumn: "customer_id", ChildTable: "td_tax_id", ChildColumn: "customer_id", Relation: schema.JSONArrayFK, Enforced: true})

	card := &Simple{
		Table: "td_card", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"}},
	}
	bankAccount := &Simple{
		Table: "td_bank_account", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"}},
	}
	paymentSource := &Polymorphic{Branches: map[string]schemaWriteTree{"card": card, "bank_account": bankAccount}}
	reg.RegisterEntity(schema.TableDef{Name: "td_card", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "card"}, card)
	reg.RegisterEntity(schema.TableDef{Name: "td_bank_account", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "bank_account"}, bankAccount)
	reg.RegisterEntity(schema.TableDef{Name: "td_card", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "source"}, paymentSource)

	paymentMethod := &Simple{
		Table: "td_payment_method", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"}},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_payment_method", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "payment_method"}, paymentMethod)

	setupIntent := &Simple{
		Table: "td_setup_intent", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"}},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_setup_intent", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "setup_intent"}, setupIntent)

	invoice := &Simple{
		Table: "td_invoice", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{
			{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"},
			{JSONField: "subscription", Column: "subscription_id", ParentTable: "td_subscription", ParentProviderIDColumn: "stripe_id"},
		},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_invoice", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "invoice"}, invoice)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_customer", OwnerIDColumn: "customer_id", ChildTable: "td_invoice", ChildColumn: "customer_id", Relation: schema.ScalarFK, Enforced: true})

	invoiceLineItem := &UnboundedChild{
		Parent:                invoice,
		ListField:             "lines",
		ChildTable:            "td_invoice_line_item",
		ChildColumn:           "invoice_id",
		ChildProviderIDColumn: "stripe_id",
		ChildDataColumn:       "data",
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_invoice_line_item", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "invoice_line_item"}, invoiceLineItem)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_invoice", OwnerIDColumn: "invoice_id", ChildTable: "td_invoice_line_item", ChildColumn: "invoice_id", Relation: schema.JSONArrayFK, Enforced: true})

	invoiceitem := &Simple{
		Table: "td_invoiceitem", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{
			{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"},
			{JSONField: "invoice", Column: "invoice_id", ParentTable: "td_invoice", ParentProviderIDColumn: "stripe_id"},
		},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_invoiceitem", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "invoiceitem"}, invoiceitem)

	charge := &Simple{
		Table: "td_charge", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{
			{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"},
			{JSONField: "invoice", Column: "invoice_id", ParentTable: "td_invoice", ParentProviderIDColumn: "stripe_id"},
		},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_charge", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "charge"}, charge)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_customer", OwnerIDColumn: "customer_id", ChildTable: "td_charge", ChildColumn: "customer_id", Relation: schema.ScalarFK, Enforced: true})

	refund := &Simple{
		Table: "td_refund", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{{JSONField: "charge", Column: "charge_id", ParentTable: "td_charge", ParentProviderIDColumn: "stripe_id"}},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_refund", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "refund"}, refund)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_charge", OwnerIDColumn: "charge_id", ChildTable: "td_refund", ChildColumn: "charge_id", Relation: schema.ScalarFK, Enforced: true})

	creditNote := &Simple{
		Table: "td_credit_note", ProviderIDColumn: "stripe_id", DataColumn: "data",
		Parents: []ParentRef{
			{JSONField: "customer", Column: "customer_id", ParentTable: "td_customer", ParentProviderIDColumn: "stripe_id"},
			{JSONField: "invoice", Column: "invoice_id", ParentTable: "td_invoice", ParentProviderIDColumn: "stripe_id"},
		},
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_credit_note", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "credit_note"}, creditNote)

	creditNoteLineItem := &UnboundedChild{
		Parent:                creditNote,
		ListField:             "lines",
		ChildTable:            "td_credit_note_line_item",
		ChildColumn:           "credit_note_id",
		ChildProviderIDColumn: "stripe_id",
		ChildDataColumn:       "data",
	}
	reg.RegisterEntity(schema.TableDef{Name: "td_credit_note_line_item", PKColumn: "id", ProviderIDColumn: "stripe_id", WriteLogObjectType: "credit_note_line_item"}, creditNoteLineItem)
	reg.RegisterEdge(schema.Edge{OwnerTable: "td_credit_note", OwnerIDColumn: "credit_note_id", ChildTable: "td_credit_note_line_item", ChildColumn: "credit_note_id", Relation: schema.JSONArrayFK, Enforced: true})
}
